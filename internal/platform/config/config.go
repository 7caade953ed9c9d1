// Package config loads runtime configuration from environment variables,
// optional .env overrides, and secret references resolved through a
// SecretResolver.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultOrdersTopic       = "order-events"
	defaultInventoryTopic    = "inventory-events"
	defaultLowStockThreshold = 5
	defaultTxMaxAttempts     = 5
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Events    EventsConfig
	Payments  PaymentsConfig
	Inventory InventoryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	EmulatorHost    string
	TxMaxAttempts   int
}

// EventsConfig names the Pub/Sub topics order and inventory events publish to.
// Publishing is disabled when ProjectID is empty.
type EventsConfig struct {
	ProjectID      string
	OrdersTopic    string
	InventoryTopic string
}

// PaymentsConfig collects payment provider settings used by settlement intake.
type PaymentsConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// InventoryConfig tunes stock ledger behaviour.
type InventoryConfig struct {
	DefaultLowStockThreshold int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
// Error output carries redacted identifiers only.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, len(e.names))
	for i, name := range e.names {
		redacted[i] = redactSecretName(name)
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loader)

type loader struct {
	envFile         string
	overrides       map[string]string
	useSystemEnv    bool
	resolver        SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.overrides = values }
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.useSystemEnv = false }
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader
// (e.g. "Payments.StripeWebhookSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.requiredSecrets = append(l.requiredSecrets, names...) }
}

// envSource is the merged view over explicit overrides, the process
// environment, and .env values, in that precedence order.
type envSource struct {
	overrides    map[string]string
	dotEnv       map[string]string
	useSystemEnv bool
}

func (s envSource) lookup(key string) (string, bool) {
	if value, ok := s.overrides[key]; ok {
		return value, true
	}
	if s.useSystemEnv {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := s.dotEnv[key]
	return value, ok
}

func (s envSource) str(key, fallback string) string {
	if value, ok := s.lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func (s envSource) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (s envSource) int(key string, fallback int) int {
	if value, ok := s.lookup(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := loader{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		resolver: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&l)
	}

	dotEnv, err := readDotEnv(l.envFile)
	if err != nil {
		return Config{}, err
	}
	env := envSource{overrides: l.overrides, dotEnv: dotEnv, useSystemEnv: l.useSystemEnv}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:       env.str("API_FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIRESTORE_CREDENTIALS_FILE", ""),
			EmulatorHost:    env.str("API_FIRESTORE_EMULATOR_HOST", ""),
			TxMaxAttempts:   env.int("API_FIRESTORE_TX_MAX_ATTEMPTS", defaultTxMaxAttempts),
		},
		Events: EventsConfig{
			ProjectID:      env.str("API_EVENTS_PROJECT_ID", ""),
			OrdersTopic:    env.str("API_EVENTS_ORDERS_TOPIC", defaultOrdersTopic),
			InventoryTopic: env.str("API_EVENTS_INVENTORY_TOPIC", defaultInventoryTopic),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:        env.str("API_PAYMENTS_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_PAYMENTS_STRIPE_WEBHOOK_SECRET", ""),
		},
		Inventory: InventoryConfig{
			DefaultLowStockThreshold: env.int("API_INVENTORY_LOW_STOCK_THRESHOLD", defaultLowStockThreshold),
		},
	}

	// Events publishing defaults to the Firestore project when unspecified.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecretFields(ctx, &cfg, l.resolver)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if err := requireSecrets(l.requiredSecrets, resolved); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveSecretFields replaces secret:// references in secret-bearing fields
// with their resolved values and returns the final value per field name.
func resolveSecretFields(ctx context.Context, cfg *Config, resolver SecretResolver) (map[string]string, error) {
	fields := map[string]*string{
		"Payments.StripeAPIKey":        &cfg.Payments.StripeAPIKey,
		"Payments.StripeWebhookSecret": &cfg.Payments.StripeWebhookSecret,
	}

	resolved := make(map[string]string, len(fields))
	for name, field := range fields {
		value, err := resolveSecret(ctx, *field, resolver)
		if err != nil {
			return nil, err
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
	}
	return resolved, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref := strings.TrimSpace(value)
	if !strings.HasPrefix(ref, "secret://") && !strings.HasPrefix(ref, "sm://") {
		return value, nil
	}
	if after, ok := strings.CutPrefix(ref, "sm://"); ok {
		ref = "secret://" + after
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func (cfg Config) validate() error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Firestore.TxMaxAttempts <= 0 {
		missing = append(missing, "Firestore.TxMaxAttempts")
	}
	if cfg.Inventory.DefaultLowStockThreshold < 0 {
		missing = append(missing, "Inventory.DefaultLowStockThreshold")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func requireSecrets(required []string, resolved map[string]string) error {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingSecretsError{names: missing}
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}
