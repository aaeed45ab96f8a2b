package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/pkg/errors"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/client"
	"github.com/scusemua/livy-notebook/common/metrics"
	"github.com/scusemua/livy-notebook/common/utils"
)

const (
	// UnassignedId is the id of a session that the gateway has not yet assigned an id to.
	UnassignedId = -1

	appInfoDriverLogUrl = "driverLogUrl"
	appInfoSparkUiUrl   = "sparkUiUrl"

	// maxDiagnosticLines is the number of trailing log lines included in startup errors.
	maxDiagnosticLines = 20
)

// Session is the local handle of one remote session.
//
// Execute serializes statements so that at most one statement of the Session is outstanding at the gateway.
// Every other method may be called concurrently.
type Session struct {
	log logger.Logger

	client     client.LivyClient
	properties *livy.SessionProperties
	opts       Options
	metrics    *metrics.LivyMetrics
	sleep      client.SleepFunc

	id           int
	status       livy.SessionStatus
	appId        string
	driverLogUrl string
	sparkUiUrl   string
	logs         []string
	adopted      bool
	deleted      bool
	heartbeat    *heartbeat

	mu     sync.Mutex
	execMu sync.Mutex
}

// NewSession creates a Session that has not been submitted to the gateway yet.
//
// The properties are copied. If opts.HeartbeatTimeout is positive and the properties do not already request a
// server-side heartbeat timeout, the timeout is added to the copy.
func NewSession(c client.LivyClient, properties *livy.SessionProperties, opts Options, m *metrics.LivyMetrics) *Session {
	opts = opts.withDefaults()

	props := properties.Clone()
	if props == nil {
		props = &livy.SessionProperties{}
	}

	if props.HeartbeatTimeoutInSecond == 0 && opts.HeartbeatTimeout > 0 {
		props.HeartbeatTimeoutInSecond = int(opts.HeartbeatTimeout.Seconds())
	}

	s := &Session{
		client:     c,
		properties: props,
		opts:       opts,
		metrics:    m,
		sleep:      client.SleepContext,
		id:         UnassignedId,
		status:     livy.StatusNotStarted,
	}

	config.InitLogger(&s.log, s)

	return s
}

// Wrap creates a Session for a remote session that this process did not create, such as one found by
// listing the gateway's sessions. The Session is not adopted; see AlreadyStarted.
func Wrap(c client.LivyClient, info *livy.SessionInfo, opts Options, m *metrics.LivyMetrics) *Session {
	s := NewSession(c, &livy.SessionProperties{
		Kind:      info.Kind,
		Name:      info.Name,
		ProxyUser: info.ProxyUser,
	}, opts, m)

	s.id = info.Id
	s.applyInfoUnsafe(info)

	return s
}

func (s *Session) Id() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

// Name returns the name the session was submitted with, which may be empty.
func (s *Session) Name() string {
	return s.properties.Name
}

func (s *Session) Kind() livy.Kind {
	return s.properties.Kind
}

// Properties returns a copy of the properties the session was (or will be) submitted with.
func (s *Session) Properties() *livy.SessionProperties {
	return s.properties.Clone()
}

func (s *Session) Endpoint() *livy.Endpoint {
	return s.client.Endpoint()
}

func (s *Session) Status() livy.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Session) AppId() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appId
}

func (s *Session) DriverLogUrl() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.driverLogUrl
}

func (s *Session) SparkUiUrl() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sparkUiUrl
}

// Logs returns the most recent log tail reported by the gateway.
func (s *Session) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]string, len(s.logs))
	copy(logs, s.logs)
	return logs
}

func (s *Session) HeartbeatTimeout() time.Duration {
	return s.opts.HeartbeatTimeout
}

// IsAdopted returns true if the Session was discovered on the gateway rather than created by Start.
func (s *Session) IsAdopted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adopted
}

// HeartbeatRunning returns true while the keep-alive task of the Session is running.
func (s *Session) HeartbeatRunning() bool {
	s.mu.Lock()
	hb := s.heartbeat
	s.mu.Unlock()

	return hb != nil && hb.running()
}

func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("Session[id=%d, name=%s, kind=%s, status=%s]", s.id, s.properties.Name, s.properties.Kind, s.status)
}

// Info returns a one-line, human-readable summary of the session.
func (s *Session) Info() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%s", s.id, s.properties.Name, s.appId, s.properties.Kind, s.status, s.sparkUiUrl)
}

// Start submits the session to the gateway and waits until the session is healthy.
//
// Start fails with a *livy.SessionStartupError if the session reaches a terminal status or does not become
// healthy within the startup timeout. In both cases the Session is left in the ERROR status; the remote session
// is not deleted. If the Session is deleted while the creation request is in flight, the remote session is
// deleted as soon as its id is known and Start fails with livy.ErrSessionTerminated.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.id != UnassignedId || s.status != livy.StatusNotStarted {
		s.mu.Unlock()
		return errors.Wrapf(livy.ErrSessionAlreadyStarted, "cannot start %s", s.properties.Name)
	}
	s.status = livy.StatusStarting
	s.mu.Unlock()

	st := time.Now()

	s.log.Debug("Submitting %s session \"%s\" for proxy user \"%s\".", s.properties.Kind, s.properties.Name, s.properties.ProxyUser)
	info, err := s.client.PostSession(ctx, s.properties)
	if err != nil {
		s.setStatus(livy.StatusError)
		s.metrics.ObserveSessionStartup(time.Since(st), false)
		return errors.Wrapf(err, "failed to submit session \"%s\"", s.properties.Name)
	}

	s.mu.Lock()
	s.id = info.Id
	if s.deleted {
		s.mu.Unlock()
		s.metrics.ObserveSessionStartup(time.Since(st), false)
		s.discardCreated(ctx, info.Id)
		return errors.Wrapf(livy.ErrSessionTerminated, "session %d (\"%s\") was deleted while it was being created", info.Id, s.properties.Name)
	}
	s.applyInfoUnsafe(info)
	s.mu.Unlock()

	s.log.Debug("Gateway assigned id %d to session \"%s\". Waiting for it to become idle.", info.Id, s.properties.Name)

	if err = s.waitForHealthy(ctx); err != nil {
		s.setStatus(livy.StatusError)
		s.metrics.ObserveSessionStartup(time.Since(st), false)
		s.log.Error(utils.RedStyle.Render("Session %d (\"%s\") failed to start: %v"), info.Id, s.properties.Name, err)
		return err
	}

	s.metrics.ObserveSessionStartup(time.Since(st), true)
	s.log.Debug("Session %d (\"%s\") started in %v.", info.Id, s.properties.Name, time.Since(st))

	s.startHeartbeat()

	return nil
}

// discardCreated deletes a session whose creation completed after the Session was deleted.
func (s *Session) discardCreated(ctx context.Context, id int) {
	s.log.Warn("Session %d (\"%s\") was deleted while it was being created. Deleting it from the gateway.", id, s.properties.Name)

	err := s.client.DeleteSession(context.WithoutCancel(ctx), id)
	if err != nil && !livy.IsStatus(err, http.StatusNotFound) {
		s.log.Error(utils.RedStyle.Render("Failed to delete session %d after it was abandoned: %v"), id, err)
	}
}

// waitForHealthy polls the session until it is healthy, reaches a terminal status, or the startup timeout elapses.
func (s *Session) waitForHealthy(ctx context.Context) error {
	deadline := time.Now().Add(s.opts.StartupTimeout)

	for {
		status := s.Status()
		if status.IsHealthy() {
			return nil
		}

		if status.IsTerminal() {
			return s.startupError(status, false)
		}

		if !time.Now().Before(deadline) {
			return s.startupError(status, true)
		}

		wait := s.opts.StartupPollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}

		if err := s.sleep(ctx, wait); err != nil {
			return errors.Wrapf(err, "stopped waiting for session %d to start", s.Id())
		}

		if err := s.Refresh(ctx); err != nil {
			return errors.Wrapf(err, "failed to refresh session %d while waiting for it to start", s.Id())
		}
	}
}

func (s *Session) startupError(status livy.SessionStatus, timedOut bool) *livy.SessionStartupError {
	logs := s.Logs()
	if len(logs) > maxDiagnosticLines {
		logs = logs[len(logs)-maxDiagnosticLines:]
	}

	return &livy.SessionStartupError{
		SessionId:  s.Id(),
		Status:     status,
		Diagnostic: strings.Join(logs, "\n"),
		TimedOut:   timedOut,
	}
}

// AlreadyStarted adopts a Session created by Wrap: the session is refreshed and, if it is healthy, its
// keep-alive task is started. Adopting a session in a terminal status fails with livy.ErrSessionTerminated.
func (s *Session) AlreadyStarted(ctx context.Context) error {
	s.mu.Lock()
	if s.id == UnassignedId {
		s.mu.Unlock()
		return errors.Wrapf(livy.ErrSessionNotStarted, "cannot adopt session \"%s\"", s.properties.Name)
	}

	if s.adopted {
		s.mu.Unlock()
		return errors.Wrapf(livy.ErrSessionAlreadyStarted, "session %d has already been adopted", s.id)
	}
	s.adopted = true
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		return err
	}

	if status := s.Status(); status.IsTerminal() {
		return errors.Wrapf(livy.ErrSessionTerminated, "cannot adopt session %d with status \"%s\"", s.Id(), status)
	}

	s.log.Debug("Adopted session %d (\"%s\").", s.Id(), s.properties.Name)
	s.startHeartbeat()

	return nil
}

// Refresh re-synchronizes the status, application id, URLs, and log tail of the session with the gateway.
//
// If the gateway no longer knows the session, the Session is marked DEAD and no error is returned.
// Refresh makes no request once the Session has reached a terminal status.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id, status := s.id, s.status
	s.mu.Unlock()

	if id == UnassignedId {
		return errors.Wrapf(livy.ErrSessionNotStarted, "cannot refresh session \"%s\"", s.properties.Name)
	}

	if status.IsTerminal() {
		return nil
	}

	info, err := s.client.GetSession(ctx, id)
	if livy.IsStatus(err, http.StatusNotFound) {
		s.log.Warn("Session %d no longer exists on the gateway. Marking it as dead.", id)
		s.mu.Lock()
		s.markDeadUnsafe()
		s.mu.Unlock()
		return nil
	}

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.applyInfoUnsafe(info)
	s.mu.Unlock()

	return nil
}

// applyInfoUnsafe updates the session from the gateway's view of it. The caller must hold mu.
func (s *Session) applyInfoUnsafe(info *livy.SessionInfo) {
	if s.status.IsTerminal() {
		return
	}

	if info.State != "" {
		s.status = info.State
	}

	if info.AppId != "" {
		s.appId = info.AppId
	}

	if url := info.AppInfoValue(appInfoDriverLogUrl); url != "" {
		s.driverLogUrl = url
	}

	if url := info.AppInfoValue(appInfoSparkUiUrl); url != "" {
		s.sparkUiUrl = url
	}

	if info.Log != nil {
		s.logs = append(s.logs[:0], info.Log...)
	}

	if s.status.IsTerminal() && s.heartbeat != nil {
		s.heartbeat.cancel()
	}
}

// setStatus changes the status of the Session. A deleted Session stays DEAD.
func (s *Session) setStatus(status livy.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return
	}

	s.status = status
	if status.IsTerminal() && s.heartbeat != nil {
		s.heartbeat.cancel()
	}
}

// markDeadUnsafe moves the session to DEAD. The caller must hold mu.
func (s *Session) markDeadUnsafe() {
	s.status = livy.StatusDead
	if s.heartbeat != nil {
		s.heartbeat.cancel()
	}
}

// Delete asks the gateway to tear the session down and marks the Session DEAD.
//
// The Session is marked DEAD whatever the outcome of the request. A session that the gateway no longer knows is
// considered deleted. Any other failure is returned for logging only. Deleting a Session twice is a no-op.
func (s *Session) Delete(ctx context.Context) error {
	s.stopHeartbeat()

	s.mu.Lock()
	id, deleted := s.id, s.deleted
	s.deleted = true
	s.markDeadUnsafe()
	s.mu.Unlock()

	if deleted || id == UnassignedId {
		return nil
	}

	s.log.Debug("Deleting session %d (\"%s\").", id, s.properties.Name)
	err := s.client.DeleteSession(ctx, id)
	if err == nil || livy.IsStatus(err, http.StatusNotFound) {
		return nil
	}

	return errors.Wrapf(err, "failed to delete session %d", id)
}

// Execute runs the executable as a statement and waits for the statement to finish.
//
// A statement that finishes in the error or cancelled state yields an unsuccessful Result carrying the
// gateway's diagnostic, not an error. Errors are returned when the statement could not be submitted or polled,
// or when the session has not been started or has terminated.
//
// Concurrent calls are serialized. Statements are never timed out; cancel ctx or Delete the Session to give up.
func (s *Session) Execute(ctx context.Context, exe livy.Executable) (livy.Result, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.mu.Lock()
	id, status := s.id, s.status
	s.mu.Unlock()

	if id == UnassignedId {
		return livy.Result{}, errors.Wrapf(livy.ErrSessionNotStarted, "cannot execute against session \"%s\"", s.properties.Name)
	}

	if status.IsTerminal() {
		return livy.Result{}, errors.Wrapf(livy.ErrSessionTerminated, "cannot execute against session %d with status \"%s\"", id, status)
	}

	code, err := exe.Code(s.properties.Kind)
	if err != nil {
		return livy.Result{}, err
	}

	st := time.Now()
	statement, err := s.client.PostStatement(ctx, id, &livy.StatementRequest{Code: code})
	if err != nil {
		return livy.Result{}, s.statementFailure(err, "failed to submit statement to session %d", id)
	}

	s.log.Trace("Submitted statement %d to session %d.", statement.Id, id)

	interval := s.opts.StatementPollInitial
	for !statement.State.IsFinal() {
		if err = s.sleep(ctx, interval); err != nil {
			return livy.Result{}, errors.Wrapf(err, "stopped waiting for statement %d of session %d", statement.Id, id)
		}

		interval *= 2
		if interval > s.opts.StatementPollMax {
			interval = s.opts.StatementPollMax
		}

		statementId := statement.Id
		if statement, err = s.client.GetStatement(ctx, id, statementId); err != nil {
			return livy.Result{}, s.statementFailure(err, "failed to poll statement %d of session %d", statementId, id)
		}
	}

	s.metrics.ObserveStatement(string(s.properties.Kind), string(statement.State), time.Since(st))

	if statement.State != livy.StatementAvailable {
		failure := &livy.StatementExecutionError{
			StatementId: statement.Id,
			State:       statement.State,
			Diagnostic:  statement.Output.Diagnostic(),
		}
		s.log.Warn("Statement %d of session %d finished in state \"%s\".", statement.Id, id, statement.State)
		return livy.ErrorResult(failure.Error()), nil
	}

	if statement.Output == nil {
		return livy.TextResult(""), nil
	}

	return exe.ParseOutput(statement.Output), nil
}

// statementFailure wraps a failed statement request, marking the Session DEAD if the gateway no longer knows it.
func (s *Session) statementFailure(err error, format string, args ...interface{}) error {
	if livy.IsStatus(err, http.StatusNotFound) {
		s.mu.Lock()
		s.markDeadUnsafe()
		s.mu.Unlock()
		return errors.Wrap(livy.ErrSessionTerminated, fmt.Sprintf(format, args...))
	}

	return errors.Wrapf(err, format, args...)
}

// Complete returns completion candidates for the code at the given cursor position.
func (s *Session) Complete(ctx context.Context, code string, cursor int) ([]string, error) {
	s.mu.Lock()
	id, status := s.id, s.status
	s.mu.Unlock()

	if id == UnassignedId {
		return nil, errors.Wrapf(livy.ErrSessionNotStarted, "cannot complete code in session \"%s\"", s.properties.Name)
	}

	if status.IsTerminal() {
		return nil, errors.Wrapf(livy.ErrSessionTerminated, "cannot complete code in session %d with status \"%s\"", id, status)
	}

	resp, err := s.client.PostCompletion(ctx, id, &livy.CompletionRequest{
		Code:   code,
		Kind:   s.properties.Kind,
		Cursor: cursor,
	})
	if err != nil {
		return nil, err
	}

	return resp.Candidates, nil
}
