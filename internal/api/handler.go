// Package api provides HTTP handlers for the Sonnik API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/identity"
)

const maxBodySize = 1 << 20

// StatusClientClosedRequest marks a request the client abandoned before the
// response was ready.
const StatusClientClosedRequest = 499

// Handler serves the JSON API.
type Handler struct {
	identity *identity.Service
	dialogue *dialogue.Service
}

// NewHandler creates a new Handler with its service dependencies.
func NewHandler(ids *identity.Service, dlg *dialogue.Service) *Handler {
	return &Handler{
		identity: ids,
		dialogue: dlg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes the failure envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"success": false, "message": message})
}

// Fail maps a service error onto the failure envelope.
func Fail(w http.ResponseWriter, r *http.Request, err error, storeMessage string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrDuplicateIdentity):
		Error(w, http.StatusBadRequest, "A user with this phone number already exists")
	case errors.Is(err, domain.ErrAuthFailure):
		Error(w, http.StatusUnauthorized, "Invalid phone number or password")
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, context.Canceled):
		slog.Debug("Request canceled by client",
			"method", r.Method,
			"path", r.URL.Path,
		)
		Error(w, StatusClientClosedRequest, "Request canceled")
	default:
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Error(w, http.StatusInternalServerError, storeMessage)
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	prefix := domain.ErrValidation.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return "Invalid request"
}

// decode reads a JSON body of at most maxBodySize into v.
// An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
