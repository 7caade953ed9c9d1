// Package httpx renders the JSON error envelope shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderlane/api/internal/platform/requestctx"
)

// Error is the canonical error envelope. Code is a stable machine-readable
// identifier; Message is human-readable and safe to surface to clients.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error, defaulting a zero status to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, 80),
		Message: clean(message, 512),
		Status:  status,
	}
}

// WithRequestID returns a copy carrying the request identifier.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, 80)
	return e
}

// WithTraceID returns a copy carrying the trace identifier.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, 64)
	return e
}

// WithDetails returns a copy carrying extra JSON-serialisable fields, which
// are merged into the top level of the rendered payload.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WriteError renders err as JSON. Request and trace identifiers fall back to
// the values on ctx when the error does not carry its own.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = clean(middleware.GetReqID(ctx), 80)
	}
	if err.TraceID == "" {
		err.TraceID = clean(requestctx.TraceID(ctx), 64)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  err.Status,
	}
	if err.RequestID != "" {
		payload["request_id"] = err.RequestID
	}
	if err.TraceID != "" {
		payload["trace_id"] = err.TraceID
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clean(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
