package formdata

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrDirectory is returned when a file part is requested for a path that
	// resolves to a directory. It wraps [fs.ErrInvalid].
	ErrDirectory = fmt.Errorf("expected a file not directory: %w", fs.ErrInvalid)

	// ErrFormConsumed is reported by a [Body] created from a [Form] that had
	// already been converted.
	ErrFormConsumed = errors.New("formdata: form already consumed")
)

// ErrorKind classifies the failures a [Body] can report while streaming.
type ErrorKind int

const (
	// BoundaryWrite means a boundary delimiter could not be written.
	BoundaryWrite ErrorKind = iota + 1
	// HeaderWrite means the headers of a part could not be written.
	HeaderWrite
	// ContentRead means the payload source of a part failed.
	ContentRead
	// ContentWrite means payload bytes could not be written.
	ContentWrite
)

func (k ErrorKind) String() string {
	switch k {
	case BoundaryWrite:
		return "boundary write"
	case HeaderWrite:
		return "header write"
	case ContentRead:
		return "content read"
	case ContentWrite:
		return "content write"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error describes a failure while streaming a form. Once a [Body] has
// returned an *Error it keeps returning it.
type Error struct {
	Kind ErrorKind
	// Part is the name of the field being encoded, if any.
	Part string
	Err  error
}

func (e *Error) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("formdata: %s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("formdata: %s failed for field %q: %v", e.Kind, e.Part, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
