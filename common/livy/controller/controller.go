package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/hashicorp/go-multierror"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/client"
	"github.com/scusemua/livy-notebook/common/livy/command"
	"github.com/scusemua/livy-notebook/common/livy/manager"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/common/metrics"
	"github.com/scusemua/livy-notebook/common/utils"
)

const (
	SessionNamePrefix = "session_name-"
)

// SessionConfigSource resolves the endpoint and the session properties to use for a language.
type SessionConfigSource interface {
	EndpointFor(language livy.Language) (*livy.Endpoint, error)
	SessionPropertiesFor(language livy.Language) (*livy.SessionProperties, error)
}

// ClientFactory creates the client used for all sessions of an endpoint.
type ClientFactory func(endpoint *livy.Endpoint) client.LivyClient

// Settings are the read-only parameters of a Controller.
type Settings struct {
	SessionOptions session.Options

	// RetryPolicy is used by clients created by the default ClientFactory. Nil selects client.DefaultRetryPolicy.
	RetryPolicy   *client.RetryPolicy
	ClientOptions []client.Option

	// SwitchToUserDatabase runs "use <UserDatabase>" after every session creation.
	SwitchToUserDatabase bool
	UserDatabase         string

	// RestrictSQL refuses queries that list or switch databases.
	RestrictSQL bool

	Sampling command.SamplingOptions
}

type Option func(*Controller)

func WithClientFactory(factory ClientFactory) Option {
	return func(c *Controller) {
		c.newClient = factory
	}
}

func WithMetrics(m *metrics.LivyMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithCurrentUser sets the principal whose sessions are listed when no proxy user is given.
func WithCurrentUser(user string) Option {
	return func(c *Controller) {
		c.currentUser = user
	}
}

// Controller is the entry point used by front-ends. It resolves session names through its registry, creates
// and deletes sessions, and runs commands and queries against them.
type Controller struct {
	log logger.Logger

	registry    *manager.Manager
	source      SessionConfigSource
	settings    Settings
	reporter    Reporter
	metrics     *metrics.LivyMetrics
	currentUser string

	// clients caches one client per endpoint, keyed by livy.Endpoint.Key.
	clients   cmap.ConcurrentMap[string, client.LivyClient]
	newClient ClientFactory
}

// NewController creates a new Controller. A nil reporter logs events.
func NewController(registry *manager.Manager, source SessionConfigSource, settings Settings, reporter Reporter, opts ...Option) *Controller {
	if reporter == nil {
		reporter = NewLogReporter()
	}

	c := &Controller{
		registry:    registry,
		source:      source,
		settings:    settings,
		reporter:    reporter,
		currentUser: utils.CurrentUser(),
		clients:     cmap.New[client.LivyClient](),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.newClient == nil {
		c.newClient = c.defaultClientFactory
	}

	config.InitLogger(&c.log, c)

	return c
}

func (c *Controller) defaultClientFactory(endpoint *livy.Endpoint) client.LivyClient {
	opts := append([]client.Option{client.WithMetrics(c.metrics)}, c.settings.ClientOptions...)
	return client.NewReliableHttpClient(endpoint, c.settings.RetryPolicy, opts...)
}

// Registry returns the registry the Controller resolves names with.
func (c *Controller) Registry() *manager.Manager {
	return c.registry
}

// ClientFor returns the client of the given endpoint, creating it on first use.
func (c *Controller) ClientFor(endpoint *livy.Endpoint) client.LivyClient {
	return c.clients.Upsert(endpoint.Key(), nil, func(exist bool, valueInMap client.LivyClient, _ client.LivyClient) client.LivyClient {
		if exist {
			return valueInMap
		}

		c.log.Debug("Creating client for endpoint %s.", endpoint)
		return c.newClient(endpoint)
	})
}

func (c *Controller) report(level EventLevel, name string, format string, args ...interface{}) {
	c.reporter.Report(Event{
		Level:       level,
		SessionName: name,
		Message:     fmt.Sprintf(format, args...),
		Timestamp:   time.Now(),
	})
}

// Resolve returns the named session, or any registered session if name is empty.
func (c *Controller) Resolve(name string) (*session.Session, error) {
	if name == "" {
		return c.registry.GetAny()
	}

	return c.registry.Get(name)
}

// Create registers a new session under the given name and starts it.
//
// If skipIfExists is set and the name is already registered, Create does nothing. If the session fails to start,
// it is unregistered and deleted from the gateway before the error is returned.
func (c *Controller) Create(ctx context.Context, name string, endpoint *livy.Endpoint, properties *livy.SessionProperties, skipIfExists bool) error {
	if skipIfExists && c.registry.Contains(name) {
		c.log.Debug("Session \"%s\" already exists. Skipping creation.", name)
		return nil
	}

	sess := session.NewSession(c.ClientFor(endpoint), properties, c.settings.SessionOptions, c.metrics)
	if err := c.registry.Add(name, sess); err != nil {
		if skipIfExists && errors.Is(err, livy.ErrDuplicateSession) {
			return nil
		}

		return err
	}

	c.report(EventInfo, name, "Starting %s session at %s.", sess.Kind(), endpoint.URL())

	if err := sess.Start(ctx); err != nil {
		c.registry.Remove(name)

		if deleteErr := sess.Delete(context.WithoutCancel(ctx)); deleteErr != nil {
			c.log.Warn("Failed to delete session \"%s\" after it failed to start: %v", name, deleteErr)
		}

		c.report(EventError, name, "Session failed to start: %v", err)
		return err
	}

	c.report(EventInfo, name, "Session %d is %s. Application: %s.", sess.Id(), sess.Status(), sess.AppId())

	c.switchToUserDatabase(ctx, name, sess)

	return nil
}

// switchToUserDatabase runs "use <database>" against a new session when configured to do so.
// A failure is reported as a warning; the session remains usable.
func (c *Controller) switchToUserDatabase(ctx context.Context, name string, sess *session.Session) {
	if !c.settings.SwitchToUserDatabase || c.settings.UserDatabase == "" {
		return
	}

	query := command.NewSQLQuery("use "+c.settings.UserDatabase, c.settings.Sampling)
	result, err := sess.Execute(ctx, query)
	if err != nil {
		c.report(EventWarning, name, "Could not switch to database \"%s\": %v", c.settings.UserDatabase, err)
		return
	}

	if !result.Success {
		c.report(EventWarning, name, "Could not switch to database \"%s\": %s", c.settings.UserDatabase, result.Message())
		return
	}

	c.log.Debug("Session \"%s\" switched to database \"%s\".", name, c.settings.UserDatabase)
}

// ListRemoteSessions returns the sessions of the given proxy user at the endpoint, most recently created first.
// An empty proxy user selects the current user. Each session is refreshed; none are registered.
func (c *Controller) ListRemoteSessions(ctx context.Context, endpoint *livy.Endpoint, proxyUser string) ([]*session.Session, error) {
	if proxyUser == "" {
		proxyUser = c.currentUser
	}

	cl := c.ClientFor(endpoint)
	list, err := cl.GetSessions(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list sessions at %s", endpoint.URL())
	}

	sessions := make([]*session.Session, 0, len(list.Sessions))
	for i := len(list.Sessions) - 1; i >= 0; i-- {
		info := list.Sessions[i]
		if info == nil || info.ProxyUser != proxyUser {
			continue
		}

		sess := session.Wrap(cl, info, c.settings.SessionOptions, c.metrics)
		if err = sess.Refresh(ctx); err != nil {
			c.log.Warn("Failed to refresh session %d: %v", info.Id, err)
		}

		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Run executes the command or query against the named session (or any session, if name is empty).
//
// Failures of the statement or of the gateway are returned as an unsuccessful Result. An error is only returned if
// the name cannot be resolved.
func (c *Controller) Run(ctx context.Context, exe livy.Executable, name string) (livy.Result, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return livy.Result{}, err
	}

	if c.settings.RestrictSQL && c.isRestricted(exe, sess.Kind()) {
		c.report(EventWarning, name, "Refused to run a statement that lists or switches databases.")
		return livy.ErrorResult("Listing or switching databases is not permitted."), nil
	}

	result, err := sess.Execute(ctx, exe)
	if err != nil {
		msg := describeFailure(err)
		c.report(EventError, name, "%s", msg)
		return livy.ErrorResult(msg), nil
	}

	return result, nil
}

func (c *Controller) isRestricted(exe livy.Executable, kind livy.Kind) bool {
	switch e := exe.(type) {
	case *command.SQLQuery:
		return command.IsRestrictedSQL(e.Query())
	case *command.Command:
		return kind == livy.KindSQL && command.IsRestrictedSQL(e.String())
	default:
		return false
	}
}

// describeFailure distinguishes connectivity failures from failures reported by the gateway.
func describeFailure(err error) string {
	switch {
	case errors.Is(err, livy.ErrNetwork):
		return fmt.Sprintf("Could not reach the gateway: %v", err)
	case errors.Is(err, livy.ErrHttp):
		return fmt.Sprintf("The gateway reported an error: %v", err)
	case errors.Is(err, livy.ErrSessionTerminated):
		return fmt.Sprintf("The session is no longer available: %v", err)
	default:
		return err.Error()
	}
}

// DeleteByName deletes the named session and unregisters it.
func (c *Controller) DeleteByName(ctx context.Context, name string) error {
	if err := c.registry.Delete(ctx, name); err != nil {
		return err
	}

	c.report(EventInfo, name, "Session deleted.")
	return nil
}

// DeleteById deletes the session with the given id at the endpoint. A registered session is deleted and
// unregistered; otherwise the session is looked up on the gateway and deleted directly.
func (c *Controller) DeleteById(ctx context.Context, endpoint *livy.Endpoint, id int) error {
	if name, ok := c.registry.GetNameById(id, endpoint); ok {
		return c.DeleteByName(ctx, name)
	}

	cl := c.ClientFor(endpoint)
	info, err := cl.GetSession(ctx, id)
	if livy.IsStatus(err, http.StatusNotFound) {
		return &livy.SessionNotFoundError{Name: fmt.Sprintf("%d", id)}
	}

	if err != nil {
		return errors.Wrapf(err, "failed to look up session %d", id)
	}

	sess := session.Wrap(cl, info, c.settings.SessionOptions, c.metrics)
	if err = sess.Delete(ctx); err != nil {
		c.log.Warn("Failed to delete session %d from the gateway: %v", id, err)
	}

	c.report(EventInfo, info.Name, "Session %d deleted.", id)
	return nil
}

// CleanUp deletes every registered session.
func (c *Controller) CleanUp(ctx context.Context) error {
	return c.registry.CleanUpAll(ctx)
}

// CleanUpEndpoint deletes every session of the current user at the endpoint, registered or not.
func (c *Controller) CleanUpEndpoint(ctx context.Context, endpoint *livy.Endpoint) error {
	sessions, err := c.ListRemoteSessions(ctx, endpoint, "")
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, sess := range sessions {
		target := sess
		if name, ok := c.registry.GetNameById(sess.Id(), endpoint); ok {
			if registered, getErr := c.registry.Get(name); getErr == nil {
				c.registry.Remove(name)
				target = registered
			}
		}

		if deleteErr := target.Delete(ctx); deleteErr != nil {
			errs = multierror.Append(errs, deleteErr)
		}
	}

	c.report(EventInfo, "", "Deleted %d session(s) at %s.", len(sessions), endpoint.URL())

	return errs.ErrorOrNil()
}

// GenerateSessionName returns the session name used for a front-end instance.
func (c *Controller) GenerateSessionName(kernelInstanceId string) string {
	return SessionNamePrefix + kernelInstanceId
}

// CreateSession creates and starts the session of a front-end instance, using the configured endpoint and
// properties of the language. It returns the name of the session.
func (c *Controller) CreateSession(ctx context.Context, kernelInstanceId string, language livy.Language, proxyUser string, queue string) (string, error) {
	name := c.GenerateSessionName(kernelInstanceId)

	endpoint, properties, err := c.resolveLanguage(language)
	if err != nil {
		return "", err
	}

	properties.Name = name
	if proxyUser != "" {
		properties.ProxyUser = proxyUser
	}
	properties.SetQueue(queue)

	if err = c.Create(ctx, name, endpoint, properties, false); err != nil {
		return "", err
	}

	return name, nil
}

func (c *Controller) resolveLanguage(language livy.Language) (*livy.Endpoint, *livy.SessionProperties, error) {
	endpoint, err := c.source.EndpointFor(language)
	if err != nil {
		return nil, nil, err
	}

	properties, err := c.source.SessionPropertiesFor(language)
	if err != nil {
		return nil, nil, err
	}

	return endpoint, properties, nil
}

// GetOrCreateSession returns the name of the session of a front-end instance. A healthy registered session is
// reused. Otherwise a healthy remote session with the same name and kind is adopted, and failing that, a new
// session is created.
func (c *Controller) GetOrCreateSession(ctx context.Context, kernelInstanceId string, language livy.Language, proxyUser string) (string, error) {
	name := c.GenerateSessionName(kernelInstanceId)

	kind, err := livy.LanguageToKind(language)
	if err != nil {
		return "", err
	}

	if sess, getErr := c.registry.Get(name); getErr == nil {
		if !sess.Status().IsTerminal() {
			return name, nil
		}

		c.log.Debug("Registered session \"%s\" has status \"%s\". Replacing it.", name, sess.Status())
		_ = c.registry.Delete(ctx, name)
	}

	endpoint, err := c.source.EndpointFor(language)
	if err != nil {
		return "", err
	}

	remote, err := c.ListRemoteSessions(ctx, endpoint, proxyUser)
	if err != nil {
		c.log.Warn("Could not list remote sessions: %v", err)
	}

	for _, sess := range remote {
		if sess.Name() != name || sess.Kind() != kind {
			continue
		}

		if sess.Status().IsTerminal() {
			_ = sess.Delete(ctx)
			continue
		}

		if err = c.registry.Add(name, sess); err != nil {
			return "", err
		}

		if err = sess.AlreadyStarted(ctx); err != nil {
			c.log.Warn("Could not adopt session %d: %v", sess.Id(), err)
			c.registry.Remove(name)
			continue
		}

		c.report(EventInfo, name, "Reusing session %d.", sess.Id())
		return name, nil
	}

	return c.CreateSession(ctx, kernelInstanceId, language, proxyUser, "")
}

// GetSessionIdForClient returns the gateway id of the named session.
func (c *Controller) GetSessionIdForClient(name string) (int, error) {
	sess, err := c.registry.Get(name)
	if err != nil {
		return session.UnassignedId, err
	}

	return sess.Id(), nil
}

func (c *Controller) GetAppId(name string) (string, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return "", err
	}

	return sess.AppId(), nil
}

func (c *Controller) GetDriverLogUrl(name string) (string, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return "", err
	}

	return sess.DriverLogUrl(), nil
}

func (c *Controller) GetSparkUiUrl(name string) (string, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return "", err
	}

	return sess.SparkUiUrl(), nil
}

// GetLogs refreshes the named session and returns its log tail.
func (c *Controller) GetLogs(ctx context.Context, name string) ([]string, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}

	if err = sess.Refresh(ctx); err != nil {
		return nil, err
	}

	return sess.Logs(), nil
}

// SessionsInfo returns a summary of every registered session.
func (c *Controller) SessionsInfo() []string {
	return c.registry.SessionsInfo()
}

// Complete returns completion candidates for the code at the cursor position.
func (c *Controller) Complete(ctx context.Context, name string, code string, cursor int) ([]string, error) {
	sess, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}

	return sess.Complete(ctx, code, cursor)
}
