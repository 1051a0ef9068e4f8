// Package errs defines the error kinds shared by the session, token and archive
// packages. Every error returned by those packages matches exactly one kind via
// errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrConfig      = errors.New("configuration error")
	ErrAuth        = errors.New("authentication error")
	ErrQuota       = errors.New("quota exceeded")
	ErrNetwork     = errors.New("network error")
	ErrPersistence = errors.New("persistence error")

	// ErrBusy is returned when a start or resume is already in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrInvalidState is returned when an operation is illegal in the current session state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrInvalidInput is returned when archive input fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries a kind, the operation that failed, and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds an Error of the given kind.
func New(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf builds an Error of the given kind with a formatted message and a cause.
func Wrapf(kind error, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind sentinel for err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrConfig, ErrAuth, ErrQuota, ErrNetwork, ErrPersistence, ErrBusy, ErrInvalidState, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// MissingKeyMessage is the detail of the ErrConfig returned when no API key is set.
const MissingKeyMessage = "API key is required"

// QuotaMessage is shown when the provider reports the plan's quota is used up.
const QuotaMessage = "Quota exceeded. Please check your ElevenLabs plan."

// UserMessage renders err as a sentence suitable for the status line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	detail := err.Error()
	if errors.As(err, &e) && e.Msg != "" {
		detail = e.Msg
	}
	switch KindOf(err) {
	case ErrQuota:
		return QuotaMessage
	case ErrConfig:
		if detail == MissingKeyMessage {
			return "API key is required. Set ECHO_API_KEY or api_key in config."
		}
		return "Configuration problem: " + detail
	case ErrAuth:
		return "Authentication failed: " + detail
	case ErrNetwork:
		return "Connection problem: " + detail
	case ErrPersistence:
		return "Could not save archive: " + detail
	case ErrBusy:
		return "Still connecting, please wait."
	case ErrInvalidInput:
		return "Invalid input: " + detail
	default:
		return detail
	}
}
