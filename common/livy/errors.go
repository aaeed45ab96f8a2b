package livy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork indicates that no response was received from the gateway (connection failure or timeout).
	ErrNetwork = errors.New("could not reach the gateway")

	// ErrHttp indicates that the gateway responded with a failure status.
	ErrHttp = errors.New("the gateway returned an error status")

	ErrSessionStartup        = errors.New("session failed to start")
	ErrSessionNotFound       = errors.New("session not found")
	ErrDuplicateSession      = errors.New("a session with that name already exists")
	ErrNoSessions            = errors.New("there are no registered sessions")
	ErrStatementExecution    = errors.New("statement did not complete successfully")
	ErrBadConfiguration      = errors.New("bad configuration")
	ErrSessionTerminated     = errors.New("session has already reached a terminal status")
	ErrSessionAlreadyStarted = errors.New("session has already been started")
	ErrSessionNotStarted     = errors.New("session has not been started")
)

// NetworkError is returned when the gateway could not be reached, even after retrying.
type NetworkError struct {
	Method   string
	Path     string
	Attempts int
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("could not connect to the gateway (%s %s) after %d attempt(s): %v", e.Method, e.Path, e.Attempts, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// HttpError is returned when the gateway answered with a non-success status code that was either
// terminal or persisted after all retries were exhausted.
type HttpError struct {
	Method   string
	Path     string
	Status   int
	Body     string
	Attempts int
}

func (e *HttpError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}

	return fmt.Sprintf("gateway returned status %d for %s %s after %d attempt(s): %s", e.Status, e.Method, e.Path, e.Attempts, body)
}

func (e *HttpError) Is(target error) bool {
	return target == ErrHttp
}

// SessionStartupError is returned when a session never reached a healthy status.
type SessionStartupError struct {
	SessionId  int
	Status     SessionStatus
	Diagnostic string
	TimedOut   bool
}

func (e *SessionStartupError) Error() string {
	var reason string
	if e.TimedOut {
		reason = "timed out waiting for session to become idle"
	} else {
		reason = "session reached a terminal status"
	}

	msg := fmt.Sprintf("session %d failed to start: %s (last known status: %s)", e.SessionId, reason, e.Status)
	if e.Diagnostic != "" {
		msg += "\n" + e.Diagnostic
	}

	return msg
}

func (e *SessionStartupError) Is(target error) bool {
	return target == ErrSessionStartup
}

// StatementExecutionError describes a statement that finished in the error or cancelled state.
type StatementExecutionError struct {
	StatementId int
	State       StatementState
	Diagnostic  string
}

func (e *StatementExecutionError) Error() string {
	if e.Diagnostic != "" {
		return e.Diagnostic
	}

	return fmt.Sprintf("statement %d finished in state \"%s\"", e.StatementId, e.State)
}

func (e *StatementExecutionError) Is(target error) bool {
	return target == ErrStatementExecution
}

type SessionNotFoundError struct {
	Name string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session \"%s\" not found", e.Name)
}

func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

type DuplicateSessionError struct {
	Name string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session \"%s\" already exists", e.Name)
}

func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// NewBadConfigurationError wraps ErrBadConfiguration with a description of the invalid input.
func NewBadConfigurationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadConfiguration, msg)
}

// IsStatus returns true if err is, or wraps, an *HttpError with the given status code.
func IsStatus(err error, status int) bool {
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.Status == status
	}

	return false
}
