// Package http exposes the answers service as a JSON API.
//
// This file implements the Builder Pattern for JSON responses so every
// handler writes the same content type, status handling and error shape.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	applog "mutaba/internal/log"
)

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// NoCache marks the response as not cacheable; rate answers change over time.
func (b *JSONResponseBuilder) NoCache() *JSONResponseBuilder {
	return b.Header("Cache-Control", "no-store")
}

// Write encodes the body before touching the writer so an encoding failure
// still produces a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body, err := json.Marshal(b.data)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		body = []byte(`{"error":"internal error"}`)
		b.statusCode = http.StatusInternalServerError
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates an error response carrying the request id.
func ErrorResponse(r *http.Request, statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, RequestID: applog.RequestID(r.Context())})
}

func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, message)
}

func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, "internal error")
}

func ServiceUnavailableError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusServiceUnavailable, message)
}

func TooManyRequestsError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusTooManyRequests, "rate limit exceeded, try again later").
		Header("Retry-After", "60")
}
