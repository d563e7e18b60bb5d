package aucterr

import (
	"errors"
	"fmt"
)

// Kind classifies an auction-house error so callers can distinguish
// "doesn't exist" from "wrong state" from "not your bid" without string
// matching.
type Kind int

const (
	// KindInvalidLotID means an operation referenced a lot id that was
	// never created.
	KindInvalidLotID Kind = iota + 1

	// KindInvalidState means the operation was attempted outside the
	// required lifecycle state (settle on a cancelled lot, claim before
	// settlement, double-claim, ...).
	KindInvalidState

	// KindNotPermitted means the caller lacks the required role.
	KindNotPermitted

	// KindNotBidder means the caller is not the owner of the referenced bid.
	KindNotBidder

	// KindInvalidBidID means the referenced bid does not exist or was
	// already claimed/refunded.
	KindInvalidBidID

	// KindInvalidFee means a fee percent exceeds 100% or the locked
	// max-curator bound.
	KindInvalidFee

	// KindInvalidParams means malformed or zero-amount inputs.
	KindInvalidParams

	// KindNotImplemented means the operation is not supported by the lot's
	// auction-type module.
	KindNotImplemented

	// KindOverflow means fixed-point scaling or fee arithmetic would exceed
	// the amount width.
	KindOverflow

	// KindInsufficientFunding means a disbursement would drive a lot's
	// escrowed funding negative. This is a fatal accounting bug, never a
	// recoverable user error.
	KindInsufficientFunding
)

func (k Kind) String() string {
	switch k {
	case KindInvalidLotID:
		return "InvalidLotId"
	case KindInvalidState:
		return "InvalidState"
	case KindNotPermitted:
		return "NotPermitted"
	case KindNotBidder:
		return "NotBidder"
	case KindInvalidBidID:
		return "InvalidBidId"
	case KindInvalidFee:
		return "InvalidFee"
	case KindInvalidParams:
		return "InvalidParams"
	case KindNotImplemented:
		return "NotImplemented"
	case KindOverflow:
		return "Overflow"
	case KindInsufficientFunding:
		return "InsufficientFunding"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a structured auction-house error carrying the offending values.
type Error struct {
	Kind Kind
	Op   string // operation that raised the error, e.g. "settle"
	Msg  string // human-readable detail
	Err  error  // wrapped cause, if any
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two aucterr errors by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an error of the given kind. The msg is formatted with args.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of err, or 0 if err is not an auction-house error.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return 0
	}
	return e.Kind
}
