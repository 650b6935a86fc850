package schema

import (
	"errors"
	"fmt"
)

// Error reports a failed column, model or path resolution.
//
// Resolution errors are always surfaced to the caller. Nothing in this
// package defaults a failed lookup to nil.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Model is the schema the lookup ran against, if any.
	Model string

	// Name is the column, path or model name that failed.
	Name string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes resolution errors.
type ErrorCode string

const (
	// CodeColumnNotFound indicates a column or path segment does not exist
	// on a schema or its ancestry.
	CodeColumnNotFound ErrorCode = "COLUMN_NOT_FOUND"

	// CodeModelNotFound indicates a schema name is not registered.
	CodeModelNotFound ErrorCode = "MODEL_NOT_FOUND"

	// CodeQueryInvalid indicates a query cannot be resolved: no model
	// context, or a path segment that cannot be traversed.
	CodeQueryInvalid ErrorCode = "QUERY_INVALID"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Model != "" && e.Name != "":
		return fmt.Sprintf("%s: %s (model=%s, name=%s)", e.Code, e.Message, e.Model, e.Name)
	case e.Name != "":
		return fmt.Sprintf("%s: %s (name=%s)", e.Code, e.Message, e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewColumnNotFound creates an Error for a missing column.
func NewColumnNotFound(model, name string) *Error {
	return &Error{
		Code:    CodeColumnNotFound,
		Model:   model,
		Name:    name,
		Message: "column not found",
	}
}

// NewModelNotFound creates an Error for an unregistered schema name.
func NewModelNotFound(name string) *Error {
	return &Error{
		Code:    CodeModelNotFound,
		Name:    name,
		Message: "model not found",
	}
}

// NewQueryInvalid creates an Error for a query that cannot be resolved.
func NewQueryInvalid(model, name, message string) *Error {
	return &Error{
		Code:    CodeQueryInvalid,
		Model:   model,
		Name:    name,
		Message: message,
	}
}

// IsColumnNotFound reports whether err is a column-not-found error.
// Uses errors.As to handle wrapped errors.
func IsColumnNotFound(err error) bool {
	return hasCode(err, CodeColumnNotFound)
}

// IsModelNotFound reports whether err is a model-not-found error.
func IsModelNotFound(err error) bool {
	return hasCode(err, CodeModelNotFound)
}

// IsQueryInvalid reports whether err is an invalid-query error.
func IsQueryInvalid(err error) bool {
	return hasCode(err, CodeQueryInvalid)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
