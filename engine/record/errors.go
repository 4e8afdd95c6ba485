package record

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected records.
var (
	ErrIncomplete = errors.New("incomplete record")
	ErrNoID       = errors.New("record has no id")
	ErrNoSource   = errors.New("record has no source")
)

// IncompleteError names the first required field a record is missing.
type IncompleteError struct {
	Field string
	ID    string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("invalid/incomplete %s for %s", e.Field, e.ID)
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

// Field returns the missing field of an incomplete-record error, or "" when
// err is not one.
func Field(err error) string {
	var ie *IncompleteError
	if errors.As(err, &ie) {
		return ie.Field
	}
	return ""
}
