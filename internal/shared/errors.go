package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated indicates a request without a usable principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates a principal asking for data outside its scope.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// FieldError describes one violated constraint on a request field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError collects every field violation found while parsing a request.
type ValidationError struct {
	Details []FieldError
}

// Add records a violation for path.
func (v *ValidationError) Add(path, message string) {
	v.Details = append(v.Details, FieldError{Path: path, Message: message})
}

// Merge appends the details of another validation error. Other errors are ignored.
func (v *ValidationError) Merge(err error) {
	var other *ValidationError
	if errors.As(err, &other) && other != nil {
		v.Details = append(v.Details, other.Details...)
	}
}

// Err returns nil when nothing was collected.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Details) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Details))
	for _, d := range v.Details {
		parts = append(parts, d.Path+": "+d.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a single-field validation error.
func Invalid(path, message string) error {
	v := &ValidationError{}
	v.Add(path, message)
	return v
}

// TimeoutError reports an aggregate query that exceeded its allotted window.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Limit)
}

// UpstreamError wraps a database failure. The wrapped detail is for logs only.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a query timeout.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
