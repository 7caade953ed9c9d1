package observability

import "unicode"

const maxFieldLength = 256

// sanitizeString strips control characters (keeping common whitespace) and
// caps the value at limit runes to keep log fields injection-safe.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldLength
	}
	out := make([]rune, 0, len(value))
	for _, r := range value {
		switch {
		case r == '\n', r == '\r', r == '\t':
			out = append(out, r)
		case unicode.IsControl(r):
		default:
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return string(out)
}

// SanitizeRoute normalises a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod normalises an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeActorID caps actor identifiers before they reach log fields.
func SanitizeActorID(id string) string {
	return sanitizeString(id, 64)
}
