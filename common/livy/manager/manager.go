package manager

import (
	"context"
	"strings"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/common/metrics"
	"github.com/scusemua/livy-notebook/common/utils"
)

// Manager is a registry of named sessions. Names are case-insensitive.
//
// All methods are safe for concurrent use. Remote requests are never made while the registry is locked.
type Manager struct {
	log logger.Logger

	sessions *orderedmap.OrderedMap[string, *session.Session]
	metrics  *metrics.LivyMetrics

	mu sync.Mutex
}

func NewManager(m *metrics.LivyMetrics) *Manager {
	manager := &Manager{
		sessions: orderedmap.NewOrderedMap[string, *session.Session](),
		metrics:  m,
	}

	config.InitLogger(&manager.log, manager)

	return manager
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add registers the session under the given name, failing with a *livy.DuplicateSessionError if the name is taken.
func (m *Manager) Add(name string, sess *session.Session) error {
	key := normalize(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, loaded := m.sessions.Get(key); loaded {
		return &livy.DuplicateSessionError{Name: key}
	}

	m.sessions.Set(key, sess)
	m.metrics.SetRegisteredSessions(m.sessions.Len())
	m.log.Debug("Registered session \"%s\". Sessions registered: %d.", key, m.sessions.Len())

	return nil
}

// Get returns the session registered under the given name, or a *livy.SessionNotFoundError.
func (m *Manager) Get(name string) (*session.Session, error) {
	key := normalize(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, loaded := m.sessions.Get(key)
	if !loaded {
		return nil, &livy.SessionNotFoundError{Name: key}
	}

	return sess, nil
}

// GetAny returns the earliest-registered session, failing with livy.ErrNoSessions if there are none.
func (m *Manager) GetAny() (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	front := m.sessions.Front()
	if front == nil {
		return nil, livy.ErrNoSessions
	}

	return front.Value, nil
}

func (m *Manager) Contains(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, loaded := m.sessions.Get(normalize(name))
	return loaded
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions.Len()
}

// Names returns the registered names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions.Keys()
}

// GetNameById returns the name of the registered session with the given id at the given endpoint.
// Ids are only unique per endpoint.
func (m *Manager) GetNameById(id int, endpoint *livy.Endpoint) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for el := m.sessions.Front(); el != nil; el = el.Next() {
		if el.Value.Id() == id && el.Value.Endpoint().Equal(endpoint) {
			return el.Key, true
		}
	}

	return "", false
}

// SessionsInfo returns a summary of every registered session, in registration order.
func (m *Manager) SessionsInfo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := make([]string, 0, m.sessions.Len())
	for el := m.sessions.Front(); el != nil; el = el.Next() {
		info = append(info, el.Key+"\t"+el.Value.Info())
	}

	return info
}

// Remove unregisters a session without deleting it.
func (m *Manager) Remove(name string) (*session.Session, bool) {
	key := normalize(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, loaded := m.sessions.Get(key)
	if loaded {
		m.sessions.Delete(key)
		m.metrics.SetRegisteredSessions(m.sessions.Len())
	}

	return sess, loaded
}

// Delete deletes the named session and unregisters it. The session is unregistered even if the gateway could not
// be reached; such failures are logged, not returned. A missing name fails with a *livy.SessionNotFoundError.
func (m *Manager) Delete(ctx context.Context, name string) error {
	sess, loaded := m.Remove(name)
	if !loaded {
		return &livy.SessionNotFoundError{Name: normalize(name)}
	}

	if err := sess.Delete(ctx); err != nil {
		m.log.Warn(utils.OrangeStyle.Render("Failed to delete session \"%s\" from the gateway: %v"), normalize(name), err)
	}

	return nil
}

// CleanUpAll deletes every registered session. The registry is always emptied. Remote failures do not stop
// the remaining deletions; they are returned together.
func (m *Manager) CleanUpAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make(map[string]*session.Session, m.sessions.Len())
	for el := m.sessions.Front(); el != nil; el = el.Next() {
		sessions[el.Key] = el.Value
	}
	m.sessions = orderedmap.NewOrderedMap[string, *session.Session]()
	m.metrics.SetRegisteredSessions(0)
	m.mu.Unlock()

	var errs *multierror.Error
	for name, sess := range sessions {
		if err := sess.Delete(ctx); err != nil {
			m.log.Warn(utils.OrangeStyle.Render("Failed to delete session \"%s\" from the gateway: %v"), name, err)
			errs = multierror.Append(errs, err)
		}
	}

	m.log.Debug("Cleaned up %d session(s).", len(sessions))

	return errs.ErrorOrNil()
}
