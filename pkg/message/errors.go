package message

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned when the input is not a JSON object.
	ErrSyntax = errors.New("message: malformed JSON")

	// ErrInvalidKey is returned for keys that are not harmonized for the message kind.
	ErrInvalidKey = errors.New("message: invalid key")

	// ErrTypeMismatch is returned when a value does not match the key's type.
	ErrTypeMismatch = errors.New("message: type mismatch")

	// ErrMissingField is returned when a required key is absent.
	ErrMissingField = errors.New("message: missing required field")

	// ErrUnknownKind is returned for a "__type" that is neither Event nor Report.
	ErrUnknownKind = errors.New("message: unknown message type")

	// ErrKeyExists is returned by Add when the key is already set.
	ErrKeyExists = errors.New("message: key already exists")
)

// FieldError describes why a single key was rejected.
type FieldError struct {
	Key    string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Key)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Key, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }
