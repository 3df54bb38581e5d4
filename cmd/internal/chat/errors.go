package chat

import (
	"errors"
	"fmt"

	"huddle/cmd/internal/docstore"
)

// Sentinel error kinds (stable for errors.Is). Store errors carry the same kinds.
var (
	ErrInvalidInput = docstore.ErrInvalidInput
	ErrNotFound     = docstore.ErrNotFound
	ErrForbidden    = errors.New("forbidden")
	ErrPartialWrite = errors.New("partial_write")
)

// OpError is the store's typed operation error.
type OpError = docstore.OpError

// PartialWriteError reports a multi-document operation where some writes landed and
// some did not. Landed writes are kept.
type PartialWriteError struct {
	Op     string
	Done   int
	Failed int
	// Err is the first failure observed.
	Err error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %v: %d done, %d failed: %v", e.Op, ErrPartialWrite, e.Done, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPartialWrite}
	}
	return []error{ErrPartialWrite, e.Err}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// AsPartialWrite extracts a PartialWriteError from err.
func AsPartialWrite(err error) (*PartialWriteError, bool) {
	var pw *PartialWriteError
	ok := errors.As(err, &pw)
	return pw, ok
}
