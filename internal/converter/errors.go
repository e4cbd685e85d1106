package converter

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion or intake failure.
type Kind string

const (
	KindUnsupportedType       Kind = "UnsupportedType"
	KindUnsupportedConversion Kind = "UnsupportedConversion"
	KindNotImplemented        Kind = "NotImplemented"
	KindDecode                Kind = "DecodeError"
	KindEngineUnavailable     Kind = "EngineUnavailable"
	KindTransform             Kind = "TransformError"
	KindSizeLimitExceeded     Kind = "SizeLimitExceeded"
	KindBatchLimitExceeded    Kind = "BatchLimitExceeded"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrUnsupportedType       = &Error{Kind: KindUnsupportedType}
	ErrUnsupportedConversion = &Error{Kind: KindUnsupportedConversion}
	ErrNotImplemented        = &Error{Kind: KindNotImplemented}
	ErrDecode                = &Error{Kind: KindDecode}
	ErrEngineUnavailable     = &Error{Kind: KindEngineUnavailable}
	ErrTransform             = &Error{Kind: KindTransform}
	ErrSizeLimitExceeded     = &Error{Kind: KindSizeLimitExceeded}
	ErrBatchLimitExceeded    = &Error{Kind: KindBatchLimitExceeded}
)

// Error is the typed failure returned by the router and every strategy.
type Error struct {
	Kind Kind
	Op   string // e.g. "raster", "route"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that errors.Is(err, ErrDecode) works for any decode
// failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
