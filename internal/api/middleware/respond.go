package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// RetryAfterSeconds is advertised when a collaborator is unavailable.
const RetryAfterSeconds = 30

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsExternal(err):
		return http.StatusServiceUnavailable
	case domain.IsConsistency(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError answers with the status matching err. Internal errors are
// logged and their details withheld from the client.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	log := logger.FromContext(r.Context())

	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		WriteError(w, status, "Internal server error")
		return
	case http.StatusServiceUnavailable:
		var ext *domain.ExternalServiceError
		errors.As(err, &ext)
		log.Warn().Err(err).Str("service", ext.Service).Msg("External service unavailable")
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		WriteError(w, status, ext.Service+" is temporarily unavailable")
		return
	case http.StatusConflict:
		log.Warn().Err(err).Msg("Consistency conflict")
	}
	WriteError(w, status, err.Error())
}
