package licensecheck

import (
	"errors"
	"fmt"
)

// Kind classifies a failed validation.
type Kind string

const (
	KindInvalidFormat  Kind = "invalid_format"
	KindNotFound       Kind = "not_found"
	KindInactiveStatus Kind = "inactive_status"
	KindExpired        Kind = "expired"
	KindBackendFailure Kind = "backend_failure"
)

var (
	ErrInvalidFormat = errors.New("invalid license key format")
	ErrNotFound      = errors.New("license not found")
)

// BackendError wraps a failure of the underlying data query.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend query: %v", e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

const (
	msgInvalidFormat = "Invalid license key format"
	msgNotFound      = "License not found. Please check the key."
	msgExpired       = "License has expired"
	msgGenericFail   = "License validation failed"
)

func inactiveMessage(status string) string {
	return fmt.Sprintf("License is %s. Please contact support.", status)
}

func backendMessage(err error) string {
	return "Server error during validation: " + err.Error()
}
