package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// reference is a parsed secret:// URI. The query string may carry a version
// or a project override; both are stripped from the canonical form used as
// the cache identity.
type reference struct {
	Raw             string
	Canonical       string
	Secret          string
	Version         string
	ProjectOverride string
}

func parseReference(ref string) (reference, error) {
	if strings.TrimSpace(ref) == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return reference{
		Raw:             ref,
		Canonical:       canonical.String(),
		Secret:          name,
		Version:         strings.TrimSpace(query.Get("version")),
		ProjectOverride: strings.TrimSpace(query.Get("project")),
	}, nil
}

func cacheKey(canonical, version string) string {
	return canonical + "#" + version
}

func envKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

// fallbackFile lazily loads a local key=value secrets file used when Secret
// Manager is unreachable or unauthenticated (development and CI).
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// lookup returns the fallback value for the reference, trying the versioned
// key before the canonical one.
func (ff *fallbackFile) lookup(ref reference, version string) (string, bool, error) {
	ff.once.Do(ff.load)
	if ff.err != nil {
		return "", false, ff.err
	}
	if val, ok := ff.values[cacheKey(ref.Canonical, version)]; ok {
		return val, true, nil
	}
	if val, ok := ff.values[ref.Canonical]; ok {
		return val, true, nil
	}
	return "", false, nil
}

func (ff *fallbackFile) load() {
	ff.values = map[string]string{}

	path := strings.TrimSpace(ff.path)
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ff.err = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = normalizeFallbackKey(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if parsed, err := parseReference(key); err == nil {
			version := parsed.Version
			if version == "" {
				version = "latest"
			}
			ff.values[parsed.Canonical] = value
			ff.values[cacheKey(parsed.Canonical, version)] = value
		} else {
			ff.values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		ff.err = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

// normalizeFallbackKey accepts the sm:// shorthand some tooling emits.
func normalizeFallbackKey(value string) string {
	if strings.HasPrefix(value, "sm://") {
		return "secret://" + strings.TrimPrefix(value, "sm://")
	}
	return value
}
