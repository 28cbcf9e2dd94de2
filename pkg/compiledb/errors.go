package compiledb

import (
	"errors"
	"fmt"
)

// Sentinel errors for database loading.
var (
	// ErrNotFound indicates the database file is missing or unreadable.
	ErrNotFound = errors.New("compilation database not found")
	// ErrMalformedDatabase indicates the content is not a valid JSON array of compile commands.
	ErrMalformedDatabase = errors.New("malformed compilation database")
	// ErrMissingField indicates a record lacks a required string field.
	ErrMissingField = errors.New("missing or invalid field")
)

// FieldError describes a record that failed schema validation.
// It matches both ErrMissingField and ErrMalformedDatabase.
type FieldError struct {
	// Index is the position of the record in the database array.
	Index int
	// Field is the offending field name.
	Field string
	// Reason is the validator's description of the failure.
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

// Unwrap exposes both sentinels to errors.Is.
func (e *FieldError) Unwrap() []error {
	return []error{ErrMissingField, ErrMalformedDatabase}
}
