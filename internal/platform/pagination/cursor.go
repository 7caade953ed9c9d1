// Package pagination implements the opaque cursor tokens used by list
// endpoints. Tokens encode the Firestore ordering values a page resumes from
// so callers never see document references.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// Cursor represents the Firestore pagination cursor payload.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// Window bounds requested page sizes for a listing surface.
type Window struct {
	Default int
	Max     int
}

// Clamp normalises a requested page size into the window. Zero and negative
// requests fall back to the default.
func (w Window) Clamp(size int) int {
	if size <= 0 {
		return w.Default
	}
	if w.Max > 0 && size > w.Max {
		return w.Max
	}
	return size
}

// EncodeToken serialises cursor into an opaque URL-safe token. An empty
// cursor encodes to the empty string.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter)+len(cursor.StartAt) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken reverses EncodeToken. A blank token yields the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	var cursor Cursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err == nil {
		err = json.Unmarshal(raw, &cursor)
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
