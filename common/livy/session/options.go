package session

import "time"

const (
	DefaultStartupTimeout           = 60 * time.Second
	DefaultStartupPollInterval      = 1 * time.Second
	DefaultStatementPollInitial     = 100 * time.Millisecond
	DefaultStatementPollMax         = 2 * time.Second
	DefaultHeartbeatRefreshInterval = 30 * time.Second
	DefaultHeartbeatRetryInterval   = 10 * time.Second
)

// Options controls the timing of a Session.
type Options struct {
	// StartupTimeout bounds the time between submitting the session and the session becoming healthy.
	StartupTimeout time.Duration

	StartupPollInterval time.Duration

	// StatementPollInitial is the first interval between statement polls. The interval doubles after every
	// poll until it reaches StatementPollMax. Statements themselves are never timed out.
	StatementPollInitial time.Duration
	StatementPollMax     time.Duration

	// HeartbeatTimeout is the server-side inactivity timeout requested for the session.
	// A positive value also enables the keep-alive task. Zero disables both.
	HeartbeatTimeout time.Duration

	// HeartbeatRefreshInterval is the interval between keep-alive refreshes.
	HeartbeatRefreshInterval time.Duration

	// HeartbeatRetryInterval is used instead of HeartbeatRefreshInterval after a failed refresh.
	HeartbeatRetryInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		StartupTimeout:           DefaultStartupTimeout,
		StartupPollInterval:      DefaultStartupPollInterval,
		StatementPollInitial:     DefaultStatementPollInitial,
		StatementPollMax:         DefaultStatementPollMax,
		HeartbeatRefreshInterval: DefaultHeartbeatRefreshInterval,
		HeartbeatRetryInterval:   DefaultHeartbeatRetryInterval,
	}
}

// withDefaults replaces non-positive intervals with their defaults.
func (o Options) withDefaults() Options {
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}

	if o.StartupPollInterval <= 0 {
		o.StartupPollInterval = DefaultStartupPollInterval
	}

	if o.StatementPollInitial <= 0 {
		o.StatementPollInitial = DefaultStatementPollInitial
	}

	if o.StatementPollMax < o.StatementPollInitial {
		o.StatementPollMax = o.StatementPollInitial
	}

	if o.HeartbeatTimeout < 0 {
		o.HeartbeatTimeout = 0
	}

	if o.HeartbeatRefreshInterval <= 0 {
		o.HeartbeatRefreshInterval = DefaultHeartbeatRefreshInterval
	}

	if o.HeartbeatRetryInterval <= 0 {
		o.HeartbeatRetryInterval = DefaultHeartbeatRetryInterval
	}

	return o
}
