package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicting record")
)

// translate maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func translate(action string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", action, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
