package errs

import (
	"errors"
	"fmt"
)

// Kind classifies failures across upload and cleanup.
type Kind string

const (
	ValidationError    Kind = "ValidationError"
	TransportFailed    Kind = "TransportFailed"
	BackendRejected    Kind = "BackendRejected"
	LedgerQueryFailed  Kind = "LedgerQueryFailed"
	LedgerWriteFailed  Kind = "LedgerWriteFailed"
	BlobDeleteFailed   Kind = "BlobDeleteFailed"
	HostedDeleteFailed Kind = "HostedDeleteFailed"
)

// Error carries a Kind plus the operation that failed. Fatal errors abort
// the whole pass instead of a single item.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
	Fatal  bool
}

func New(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether any *Error in err's chain is fatal.
func IsFatal(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Fatal {
			return true
		}
		err = e.Err
	}
	return false
}
