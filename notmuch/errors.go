package notmuch

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrorKind classifies where a failure originated.
type ErrorKind string

const (
	// KindIO indicates a local file or path handling failure.
	KindIO ErrorKind = "io"
	// KindStatus indicates a non-success status reported by the engine.
	KindStatus ErrorKind = "status"
	// KindSync indicates contention on an operation that needs exclusive use
	// of the database handle.
	KindSync ErrorKind = "sync"
)

// Error is the single error type returned by this package.
//
// Callers can switch on Kind, inspect Status for engine failures, or use
// errors.Is with a Status value or errors.As with *os.PathError for the
// underlying cause.
type Error struct {
	Kind ErrorKind
	// Op names the operation that failed, for example "open" or "upgrade".
	Op string
	// Status is the engine status for KindStatus errors.
	Status Status
	// Message carries extra detail reported by the engine or a description of
	// the contention for KindSync errors.
	Message string
	// Err is the underlying cause for KindIO errors.
	Err error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return "notmuch: <nil>"
	}
	var b strings.Builder
	b.WriteString("notmuch: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch e.Kind {
	case KindStatus:
		b.WriteString(e.Status.String())
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
	case KindIO:
		if e.Err != nil {
			b.WriteString(e.Err.Error())
		} else {
			b.WriteString(e.Message)
		}
	default:
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches Status targets against status errors.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	st, ok := target.(Status)
	return ok && e.Kind == KindStatus && e.Status == st
}

func statusError(op string, st Status, message string) error {
	if st == StatusSuccess {
		return nil
	}
	return &Error{Kind: KindStatus, Op: op, Status: st, Message: strings.TrimSpace(message)}
}

func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	var nmErr *Error
	if errors.As(err, &nmErr) {
		return err
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func syncError(op string, format string, args ...any) error {
	return &Error{Kind: KindSync, Op: op, Message: fmt.Sprintf(format, args...)}
}

// checkPath rejects paths the engine cannot represent as C strings.
func checkPath(op string, path string) error {
	if strings.IndexByte(path, 0) >= 0 {
		return ioError(op, &os.PathError{Op: op, Path: path, Err: errors.New("path contains NUL byte")})
	}
	return nil
}

// StatusOf returns the engine status carried by err, or StatusSuccess when err
// is nil or did not come from the engine.
func StatusOf(err error) Status {
	var nmErr *Error
	if errors.As(err, &nmErr) && nmErr.Kind == KindStatus {
		return nmErr.Status
	}
	return StatusSuccess
}
