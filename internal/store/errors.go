package store

import (
	"errors"
	"fmt"
	"strings"

	"hashsync/internal/services"
)

// ErrDuplicate reports a unique-constraint violation. It wraps
// services.ErrValidation so callers can map it to a validation failure.
var ErrDuplicate = fmt.Errorf("%w: duplicate key", services.ErrValidation)

const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicate reports whether err came from a unique-constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func classifyWriteError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
