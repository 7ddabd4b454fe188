// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrBookNotFound indicates no book exists for a fingerprint or id.
	ErrBookNotFound = fmt.Errorf("book %w", ErrNotFound)
)

// Uniqueness conflicts reported by storage.
var (
	// ErrDuplicateFingerprint indicates another writer already created a book with the same fingerprint.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

	// ErrDuplicateSourceLink indicates the (book, source, external id) link already exists.
	ErrDuplicateSourceLink = errors.New("duplicate source link")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingTitle indicates a record has no usable title after extraction.
	ErrMissingTitle = errors.New("missing title")

	// ErrInvalidSourceConfig indicates a source definition cannot be used.
	ErrInvalidSourceConfig = errors.New("invalid source config")
)

// Acquisition errors.
var (
	// ErrFetchFailed indicates the fetch layer produced no payload for a unit.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrUnitMissing indicates a source permanently lacks the requested unit.
	ErrUnitMissing = errors.New("unit missing at source")
)

// Run coordination errors.
var (
	// ErrLockHeld indicates another run of the same source configuration is active.
	ErrLockHeld = errors.New("run lock held")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
