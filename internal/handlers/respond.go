package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bensuskins/office-hub/internal/models"
	"github.com/bensuskins/office-hub/internal/repository"
	"github.com/bensuskins/office-hub/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps service and repository errors onto status codes. Anything
// unrecognized is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		writeMessage(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrAssignmentRevoked),
		errors.Is(err, repository.ErrConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		slog.Error("handling request", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &models.ValidationError{Field: field, Reason: "is required"}
	}
	date, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return date, nil
}
