package sheet

import (
	"errors"
	"fmt"
)

// Sentinel errors. Operations wrap them with context; match with errors.Is.
var (
	// ErrNotFound reports a reference to an id that does not exist or was deleted.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument reports malformed input such as a bad reorder permutation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTypeMismatch reports a value whose kind conflicts with a declared field type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrParse reports malformed or truncated serialized input.
	ErrParse = errors.New("parse error")

	// ErrUnsupportedVersion reports a stored schema newer than this binary understands.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

// ParseError describes why serialized input was rejected.
// Path locates the offending element (e.g. "entities[2].children[0].value").
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Path, msg)
	}
	return fmt.Sprintf("parse error: %s", msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrParse) hold for every *ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func parseErrorf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedVersionError is returned when stored data was written by a newer schema.
type UnsupportedVersionError struct {
	Found     int
	Supported int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported schema version %d (this build supports up to %d)", e.Found, e.Supported)
}

// Is makes errors.Is(err, ErrUnsupportedVersion) hold.
func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument returns true if err is or wraps ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsTypeMismatch returns true if err is or wraps ErrTypeMismatch.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}
