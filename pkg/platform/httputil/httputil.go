// Package httputil writes the JSON envelopes shared by every endpoint.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Error codes that appear in the "error" field of failure envelopes.
const (
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal_error"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write json response", "error", err)
	}
}

// WriteError writes a failure envelope. Internal errors never carry a message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		message = ""
	}
	WriteJSON(w, status, ErrorBody{Success: false, Error: code, Message: message})
}

// DecodeJSON reads a single JSON value of at most maxBytes into v, rejecting
// unknown fields.
func DecodeJSON(r *http.Request, v any, maxBytes int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
