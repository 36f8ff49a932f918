package pbjson

import (
	"fmt"
	"strings"
)

// FormatError is returned for any JSON document that does not conform to the
// proto3 JSON mapping for the target schema. The field stack names the path
// from the containing message down to the offending field.
type FormatError struct {
	fieldStack []string
	err        error
}

func (e *FormatError) Error() string {
	if len(e.fieldStack) == 0 {
		return e.err.Error()
	}
	return "unparsable field " + strings.Join(e.fieldStack, ".") + ": " + e.err.Error()
}

func (e *FormatError) Unwrap() error {
	return e.err
}

// formatErrorf builds a new FormatError with no field context.
func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{err: fmt.Errorf(format, args...)}
}

// fieldError wraps err with a field name, prepending to the stack when err
// already carries one.
func fieldError(fieldName string, err error) error {
	if fErr, ok := err.(*FormatError); ok {
		fErr.fieldStack = append([]string{fieldName}, fErr.fieldStack...)
		return fErr
	}
	return &FormatError{
		fieldStack: []string{fieldName},
		err:        err,
	}
}
