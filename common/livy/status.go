package livy

// SessionStatus is the status of a remote session, as reported by the gateway or derived locally.
type SessionStatus string

const (
	StatusNotStarted   SessionStatus = "not_started"
	StatusStarting     SessionStatus = "starting"
	StatusIdle         SessionStatus = "idle"
	StatusBusy         SessionStatus = "busy"
	StatusShuttingDown SessionStatus = "shutting_down"
	StatusRecovering   SessionStatus = "recovering"
	StatusError        SessionStatus = "error"
	StatusDead         SessionStatus = "dead"
	StatusKilled       SessionStatus = "killed"
	StatusSuccess      SessionStatus = "success"
)

func (s SessionStatus) String() string {
	return string(s)
}

// IsHealthy returns true if the session can accept statements.
func (s SessionStatus) IsHealthy() bool {
	return s == StatusIdle || s == StatusBusy
}

// IsTerminal returns true if the session can never become healthy again.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusError, StatusDead, StatusKilled, StatusSuccess:
		return true
	default:
		return false
	}
}

// StatementState is the execution state of a single statement.
type StatementState string

const (
	StatementWaiting    StatementState = "waiting"
	StatementRunning    StatementState = "running"
	StatementAvailable  StatementState = "available"
	StatementError      StatementState = "error"
	StatementCancelling StatementState = "cancelling"
	StatementCancelled  StatementState = "cancelled"
)

func (s StatementState) String() string {
	return string(s)
}

// IsFinal returns true once the statement will not change state again.
func (s StatementState) IsFinal() bool {
	return s == StatementAvailable || s == StatementError || s == StatementCancelled
}
