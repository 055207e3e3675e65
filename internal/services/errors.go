package services

import (
	"errors"

	"github.com/bensuskins/office-hub/internal/models"
)

var (
	// ErrNotRecurring rejects recurrence-only operations on single-instance
	// assignments. It is a *models.ValidationError.
	ErrNotRecurring error = &models.ValidationError{Field: "recurrence", Reason: "assignment does not recur"}

	ErrInvalidState      = errors.New("invalid occurrence state transition")
	ErrAssignmentRevoked = errors.New("assignment is revoked")
)
