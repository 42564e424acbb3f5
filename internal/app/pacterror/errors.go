package pacterror

import (
	"fmt"
)

// Kind classifies the infrastructural failures raised to callers. Structural
// mismatches between expected and actual traffic are never reported as errors.
type Kind string

const (
	KindConfiguration       Kind = "configuration error"
	KindMalformedBody       Kind = "malformed request body error"
	KindMockServerBind      Kind = "mock server bind error"
	KindUnknownMockServer   Kind = "unknown mock server error"
	KindIO                  Kind = "io error"
	KindMatchingInternal    Kind = "matching internal error"
	KindInteractionsTimeout Kind = "interactions timeout error"
)

// Sentinels for errors.Is comparisons; they match any error of the same kind.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrMalformedBody       = &Error{Kind: KindMalformedBody}
	ErrMockServerBind      = &Error{Kind: KindMockServerBind}
	ErrUnknownMockServer   = &Error{Kind: KindUnknownMockServer}
	ErrIO                  = &Error{Kind: KindIO}
	ErrMatchingInternal    = &Error{Kind: KindMatchingInternal}
	ErrInteractionsTimeout = &Error{Kind: KindInteractionsTimeout}
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return string(e.Kind)
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so that wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, cause error, format string, a ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Cause: cause}
}

func Configurationf(format string, a ...interface{}) error {
	return newf(KindConfiguration, nil, format, a...)
}

func MalformedBody(cause error, format string, a ...interface{}) error {
	return newf(KindMalformedBody, cause, format, a...)
}

func MockServerBind(cause error, format string, a ...interface{}) error {
	return newf(KindMockServerBind, cause, format, a...)
}

func UnknownMockServer(port int) error {
	return newf(KindUnknownMockServer, nil, "no mock server running on port %d", port)
}

func IO(cause error, format string, a ...interface{}) error {
	return newf(KindIO, cause, format, a...)
}

func MatchingInternal(cause error, format string, a ...interface{}) error {
	return newf(KindMatchingInternal, cause, format, a...)
}

func InteractionsTimeout(format string, a ...interface{}) error {
	return newf(KindInteractionsTimeout, nil, format, a...)
}
