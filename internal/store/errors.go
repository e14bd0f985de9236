package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sheetmyself/internal/sheet"
)

var (
	// ErrIO indicates the backend could not complete a read or write.
	ErrIO = errors.New("storage i/o failed")

	// ErrNotFound indicates nothing has been stored yet.
	ErrNotFound = sheet.ErrNotFound

	// ErrCorrupt indicates stored bytes failed an integrity check.
	ErrCorrupt = errors.New("stored document is corrupt")
)

// IOError describes a failed backend call.
type IOError struct {
	Op       string // "load" or "save"
	TimedOut bool
	Err      error
}

func (e *IOError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIO) true for every IOError.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// newIOError classifies err, marking it as a timeout when either the error
// itself or the call's context reports an expired deadline.
func newIOError(ctx context.Context, op string, err error) *IOError {
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &IOError{Op: op, TimedOut: timedOut, Err: err}
}

// IsTimeout reports whether err is an IOError caused by an expired deadline.
func IsTimeout(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) && ioErr.TimedOut
}
