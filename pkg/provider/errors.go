package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound            = errors.New("object not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")

	// ErrUnsupported indicates the backend lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// ProviderError wraps a backend failure with the operation and location.
type ProviderError struct {
	Op       string
	Provider ProviderType
	Bucket   string
	Key      string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	where := e.Key
	if e.Bucket != "" {
		where = e.Bucket + "/" + e.Key
		if e.Key == "" {
			where = e.Bucket
		}
	}
	if where == "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, where, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
