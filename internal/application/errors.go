package application

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is matched by every error raised when the
	// persistence backend cannot be read or written.
	ErrBackendUnavailable = errors.New("application: backend unavailable")
	// ErrMalformedRecord is matched by errors describing stored records whose
	// date and time cannot be parsed.
	ErrMalformedRecord = errors.New("application: malformed record")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// BackendUnavailableError reports a failed read or write against the backend.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("backend unavailable during %s", e.Op)
	}
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrBackendUnavailable.
func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// MalformedRecordError describes a stored record excluded from time ordered views.
type MalformedRecordError struct {
	ID   string
	Date string
	Time string
	Err  error
}

func (e *MalformedRecordError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("appointment %s has unparseable schedule %q %q: %v", e.ID, e.Date, e.Time, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
