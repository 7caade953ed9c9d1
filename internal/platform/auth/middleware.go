package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	domain "github.com/orderlane/api/internal/domain"
)

// Header names populated by the API gateway after it has authenticated the caller.
const (
	ActorTypeHeader = "X-Actor-Type"
	ActorIDHeader   = "X-Actor-Id"
)

// Extractor resolves the acting principal from gateway-provided request headers.
// The gateway terminates authentication; this service only trusts the headers
// it forwards on the internal network.
type Extractor struct {
	typeHeader string
	idHeader   string
}

// Option customises Extractor behaviour.
type Option func(*Extractor)

// WithTypeHeader overrides the header carrying the actor type.
func WithTypeHeader(name string) Option {
	return func(e *Extractor) {
		name = strings.TrimSpace(name)
		if name != "" {
			e.typeHeader = name
		}
	}
}

// WithIDHeader overrides the header carrying the actor identifier.
func WithIDHeader(name string) Option {
	return func(e *Extractor) {
		name = strings.TrimSpace(name)
		if name != "" {
			e.idHeader = name
		}
	}
}

// NewExtractor constructs an Extractor for middleware composition.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		typeHeader: ActorTypeHeader,
		idHeader:   ActorIDHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// RequireActor rejects requests that arrive without a valid actor identity.
// When allowedTypes is non-empty the actor type must also be one of them.
func (e *Extractor) RequireActor(allowedTypes ...domain.ActorType) func(http.Handler) http.Handler {
	allowed := make(map[domain.ActorType]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := e.actorFromRequest(r)
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "missing_identity", "actor identity headers absent or malformed")
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[actor.Type]; !ok {
					respondAuthError(w, http.StatusForbidden, "insufficient_role", "actor type is not permitted for this resource")
					return
				}
			}

			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalActor attaches the actor to context when the headers are present,
// passing the request through untouched otherwise.
func (e *Extractor) OptionalActor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := e.actorFromRequest(r); ok {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (e *Extractor) actorFromRequest(r *http.Request) (domain.Actor, bool) {
	actor := domain.Actor{
		Type: domain.ActorType(strings.ToLower(strings.TrimSpace(r.Header.Get(e.typeHeader)))),
		ID:   strings.TrimSpace(r.Header.Get(e.idHeader)),
	}
	if !actor.Valid() {
		return domain.Actor{}, false
	}
	return actor, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
