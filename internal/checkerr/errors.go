// Package checkerr provides the typed error taxonomy shared by every layer of the checker.
package checkerr

import (
	stderrs "errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can decide between retrying, skipping, or aborting
// without matching on message text.
type Kind uint8

const (
	// KindOrchestration is the catch-all for anything unclassified.
	KindOrchestration Kind = iota
	// KindBrowser covers session, navigation, and element failures.
	KindBrowser
	// KindAuthorization covers login flow failures.
	KindAuthorization
	// KindConfiguration covers missing or invalid settings, checked before any session opens.
	KindConfiguration
	// KindExternalService covers provisioning API and spreadsheet failures.
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindBrowser:
		return "BrowserError"
	case KindAuthorization:
		return "AuthorizationError"
	case KindConfiguration:
		return "ConfigurationError"
	case KindExternalService:
		return "ExternalServiceError"
	default:
		return "OrchestrationError"
	}
}

// Error is the structured error carried across package boundaries.
type Error struct {
	orig error
	msg  string
	kind Kind
	op   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := e.msg
	if e.op != "" {
		prefix = e.op + ": " + e.msg
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", prefix, e.orig)
	}
	return prefix
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.orig }

// Kind returns the classification.
func (e *Error) Kind() Kind { return e.kind }

// Op returns the operation label, if set.
func (e *Error) Op() string { return e.op }

// New creates an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{kind: kind, op: op, msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{kind: kind, op: op, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and context to an existing error. A nil err yields nil.
func Wrap(err error, kind Kind, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{orig: err, kind: kind, op: op, msg: msg}
}

// Browser is shorthand for Wrap(err, KindBrowser, op, msg); with a nil err it creates a new error.
func Browser(err error, op, msg string) error {
	if err == nil {
		return New(KindBrowser, op, msg)
	}
	return Wrap(err, KindBrowser, op, msg)
}

// As extracts the outermost *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the classification of err, defaulting to KindOrchestration.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.kind
	}
	return KindOrchestration
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.kind == kind {
			return true
		}
		err = stderrs.Unwrap(err)
	}
	return false
}

// connectionFatalMarkers identify errors after which the browser connection cannot be reused.
// They match anywhere in the lowercased message, so any error that merely mentions
// "closed" or "connection" (a URL, a popup that closed) is treated as fatal too.
// Abandoning a server too early only costs error rows; reusing a dead browser hangs.
var connectionFatalMarkers = []string{
	"not initialized",
	"closed",
	"disconnected",
	"connection",
}

// IsConnectionFatal reports whether err means the browser session is gone, in which case
// the remaining usernames for the current server must be abandoned.
func IsConnectionFatal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionFatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
