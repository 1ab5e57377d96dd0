package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the vendor-independent classification of a failed call.
// The set is closed: every adapter maps onto exactly one of these.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindRateLimit      ErrorKind = "rate_limit"
	KindConflict       ErrorKind = "conflict"
	KindServerError    ErrorKind = "server_error"
	KindNetwork        ErrorKind = "network"
	KindUnknown        ErrorKind = "unknown"
)

// AllErrorKinds returns the closed taxonomy.
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{
		KindAuthentication, KindValidation, KindNotFound, KindRateLimit,
		KindConflict, KindServerError, KindNetwork, KindUnknown,
	}
}

// NormalizedError is the only failure type a provider contract method returns.
type NormalizedError struct {
	Kind             ErrorKind
	Message          string
	RetryAfter       time.Duration // Zero when the vendor gave no hint.
	VendorStatusCode int           // Zero for transport-level failures.
	VendorPayload    []byte        // Raw response body, kept for diagnostics.
	Attempts         int           // Set by the executor on the terminal error.
	Cause            error
}

func (e *NormalizedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.VendorStatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.VendorStatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *NormalizedError) Unwrap() error { return e.Cause }

// NewError builds a NormalizedError with the given kind and message.
func NewError(kind ErrorKind, format string, args ...any) *NormalizedError {
	return &NormalizedError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsNormalized extracts a *NormalizedError from err's chain.
func AsNormalized(err error) (*NormalizedError, bool) {
	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown when err is not normalized.
func KindOf(err error) ErrorKind {
	if ne, ok := AsNormalized(err); ok {
		return ne.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ne, ok := AsNormalized(err)
	return ok && ne.Kind == kind
}

// Reasons a provider instance could not be produced.
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrUnknownVendor       = errors.New("unknown vendor")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrValidationFailed    = errors.New("credential validation failed")
	ErrInvalidConfig       = errors.New("invalid provider configuration")
	ErrUnsupportedDomain   = errors.New("provider does not implement domain contract")
)

// ConfigurationError means a provider instance is unusable, as opposed to a
// single call having failed. It is never retried.
type ConfigurationError struct {
	Key    CacheKey
	Reason error // One of the Err* reasons above.
	Err    error // Underlying cause, may be nil.
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %v: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
