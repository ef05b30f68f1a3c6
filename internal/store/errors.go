package store

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateKey      = errors.New("license key already exists")
	ErrInsufficientStock = errors.New("not enough keys in stock")
	ErrNotOwner          = errors.New("record belongs to another account")
	ErrActivationLimit   = errors.New("activation limit reached")
	ErrDuplicateListing  = errors.New("product already listed")
)

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// isUniqueViolation reports whether err came from a unique constraint on
// either supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
