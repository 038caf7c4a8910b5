package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTags signals tag slugs missing from the catalog.
	ErrInvalidTags = errors.New("invalid tags")
	// ErrUnauthorized signals a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals that the acting user does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict signals a state conflict (e.g. a second accepted answer).
	ErrConflict = errors.New("conflict")
	// ErrIndexUnavailable signals a failed search index call.
	ErrIndexUnavailable = errors.New("search index unavailable")
	// ErrMalformedEvent signals an event that can never be applied.
	ErrMalformedEvent = errors.New("malformed event")
)

// ValidationError names the offending request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// InvalidTagsError lists every submitted tag slug that is not in the catalog.
type InvalidTagsError struct {
	Slugs []string
}

func (e *InvalidTagsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidTags.Error(), strings.Join(e.Slugs, ", "))
}

func (e *InvalidTagsError) Unwrap() error { return ErrInvalidTags }
