// Package mux is the registry of streaming sessions. Topics configured as
// shared (the sidebar mini-graphs by default) reuse one session per endpoint
// key across all subscribers; other topics get a private session per
// subscription. Every session is tracked so the monitoring switch reaches all
// of them.
package mux

import (
	"sort"
	"sync"
	"time"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/session"
	"github.com/rileyhilliard/nodewatch/internal/transport"
)

// SidebarTopic carries several categories per frame.
const SidebarTopic = string(codec.CategoryMinigraphs)

// Options configures a Multiplexer.
type Options struct {
	Scheme     string
	Host       string
	Credential credential.Provider
	Dialer     transport.Dialer
	BufferSize int

	RetryDelay  time.Duration
	MaxAttempts int
	// AfterFunc replaces the retry timer source.
	AfterFunc session.AfterFunc

	// SharedTopics lists topics whose sessions are shared per endpoint key.
	// Nil means just the sidebar topic.
	SharedTopics []string

	// Disabled starts the registry with monitoring switched off.
	Disabled bool

	Logger logger.Logger
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Enabled        bool
	Sessions       int
	SharedSessions int
	Subscriptions  int
	Listeners      int
	PendingRetries int
	SidebarNode    string
}

// Multiplexer owns every session it hands out.
type Multiplexer struct {
	opts   Options
	sw     *session.Switch
	policy *session.Policy
	log    logger.Logger

	mu        sync.Mutex
	shared    map[session.EndpointKey]*entry
	entries   map[*session.Session]*entry
	sidebar   *sidebar
	listeners map[int]session.Handlers
	nextID    int
	closed    bool
}

// entry is one tracked session. subs counts Subscription handles; the
// sidebar holds its own subscriber on the session and is not counted.
type entry struct {
	session *session.Session
	key     session.EndpointKey
	shared  bool
	subs    int
}

type sidebar struct {
	nodeID string
	entry  *entry
	subID  int
}

// New creates a Multiplexer.
func New(opts Options) *Multiplexer {
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}
	if opts.SharedTopics == nil {
		opts.SharedTopics = []string{SidebarTopic}
	}
	if opts.Dialer == nil {
		opts.Dialer = transport.NewWebSocketDialer(0, 0)
	}

	sw := session.NewSwitch(!opts.Disabled)
	policyOpts := []session.PolicyOption{
		session.WithMaxAttempts(opts.MaxAttempts),
		session.WithLogger(log),
	}
	if opts.AfterFunc != nil {
		policyOpts = append(policyOpts, session.WithAfterFunc(opts.AfterFunc))
	}

	return &Multiplexer{
		opts:      opts,
		sw:        sw,
		policy:    session.NewPolicy(opts.RetryDelay, sw, policyOpts...),
		log:       log,
		shared:    make(map[session.EndpointKey]*entry),
		entries:   make(map[*session.Session]*entry),
		listeners: make(map[int]session.Handlers),
	}
}

// Endpoint builds an endpoint on the configured server.
func (m *Multiplexer) Endpoint(topic, nodeID string) session.Endpoint {
	return session.Endpoint{
		Scheme: m.opts.Scheme,
		Host:   m.opts.Host,
		Domain: topic,
		Topic:  topic,
		NodeID: nodeID,
	}
}

// MonitoringEnabled reports the switch state.
func (m *Multiplexer) MonitoringEnabled() bool {
	return m.sw.Enabled()
}

func (m *Multiplexer) isShared(topic string) bool {
	for _, t := range m.opts.SharedTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// newSession must be called with m.mu held.
func (m *Multiplexer) newSession(ep session.Endpoint) *session.Session {
	router := codec.NewRouter()
	router.Register(codec.CategoryMinigraphs, NewAggregateDecoder())

	return session.New(ep, session.Options{
		Credential: m.opts.Credential,
		Dialer:     m.opts.Dialer,
		Decoder:    router,
		BufferSize: m.opts.BufferSize,
		Policy:     m.policy,
		Logger:     m.log,
	})
}

func (m *Multiplexer) checkUsable() error {
	if m.closed {
		return errors.New(errors.ErrDisabled, "Stream registry has been shut down", "")
	}
	if !m.sw.Enabled() {
		return errors.New(errors.ErrDisabled, "Monitoring is disabled", "Enable monitoring, then reconnect")
	}
	return nil
}

// Subscribe attaches h to the stream for ep and starts it. Shared topics
// reuse an existing session for the same endpoint key. Connection problems,
// including a missing credential, are reported through h.OnError.
func (m *Multiplexer) Subscribe(ep session.Endpoint, h session.Handlers) (*Subscription, error) {
	m.mu.Lock()
	if err := m.checkUsable(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	e := m.entryLocked(ep)
	e.subs++
	id := e.session.Subscribe(h)
	m.mu.Unlock()

	if err := e.session.Open(); err != nil {
		m.log.Debug("open %s: %v", ep, err)
	}
	return &Subscription{m: m, entry: e, id: id}, nil
}

// entryLocked returns the shared entry for ep's key, or registers a new one.
// Must be called with m.mu held.
func (m *Multiplexer) entryLocked(ep session.Endpoint) *entry {
	key := ep.Key()
	if e, ok := m.shared[key]; ok {
		return e
	}
	e := &entry{session: m.newSession(ep), key: key, shared: m.isShared(ep.Topic)}
	m.entries[e.session] = e
	if e.shared {
		m.shared[key] = e
	}
	return e
}

// release drops one subscriber. The session closes once nothing, including
// the sidebar, is subscribed to it.
func (m *Multiplexer) release(e *entry, id int) {
	m.mu.Lock()
	remaining := e.session.Unsubscribe(id)
	tracked := m.entries[e.session] == e
	if tracked && e.subs > 0 {
		e.subs--
	}
	last := tracked && remaining == 0
	if last {
		m.forgetLocked(e)
	}
	m.mu.Unlock()

	if last {
		m.closeSession(e.session)
	}
}

func (m *Multiplexer) closeSession(s *session.Session) {
	if s == nil {
		return
	}
	s.Close(true)
	m.policy.Forget(s)
}

// forgetLocked must be called with m.mu held.
func (m *Multiplexer) forgetLocked(e *entry) {
	delete(m.entries, e.session)
	if m.shared[e.key] == e {
		delete(m.shared, e.key)
	}
}

// Connect points the sidebar at nodeID. It is a no-op when already connected
// to that node; otherwise the current sidebar is detached first. When the
// sidebar topic is shared, an existing session for the same endpoint key is
// reused.
func (m *Multiplexer) Connect(nodeID string) error {
	m.mu.Lock()
	if err := m.checkUsable(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.sidebar != nil && m.sidebar.nodeID == nodeID {
		m.mu.Unlock()
		return nil
	}

	stale := m.detachSidebarLocked()

	e := m.entryLocked(m.Endpoint(SidebarTopic, nodeID))
	id := e.session.Subscribe(m.fanOut())
	m.sidebar = &sidebar{nodeID: nodeID, entry: e, subID: id}
	m.mu.Unlock()

	m.closeSession(stale)
	if err := e.session.Open(); err != nil {
		m.log.Debug("open sidebar for %s: %v", nodeID, err)
	}
	return nil
}

// Disconnect detaches the sidebar. Its session is closed unless a
// subscription still shares it.
func (m *Multiplexer) Disconnect() {
	m.mu.Lock()
	stale := m.detachSidebarLocked()
	m.mu.Unlock()

	m.closeSession(stale)
}

// detachSidebarLocked unhooks the sidebar and returns its session when
// nothing else holds it. Must be called with m.mu held.
func (m *Multiplexer) detachSidebarLocked() *session.Session {
	old := m.sidebar
	if old == nil {
		return nil
	}
	m.sidebar = nil
	remaining := old.entry.session.Unsubscribe(old.subID)
	if m.entries[old.entry.session] != old.entry || remaining > 0 {
		return nil
	}
	m.forgetLocked(old.entry)
	return old.entry.session
}

// SidebarNode returns the node the sidebar is connected to.
func (m *Multiplexer) SidebarNode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sidebar == nil {
		return ""
	}
	return m.sidebar.nodeID
}

// SidebarSession returns the current sidebar session, or nil.
func (m *Multiplexer) SidebarSession() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sidebar == nil {
		return nil
	}
	return m.sidebar.entry.session
}

// AddListener registers h for sidebar events and returns its remover.
// Listeners survive Connect switching nodes. Removing the last listener
// disconnects the sidebar so nothing retries without a consumer.
func (m *Multiplexer) AddListener(h session.Handlers) (remove func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = h
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			var stale *session.Session
			if len(m.listeners) == 0 {
				stale = m.detachSidebarLocked()
			}
			m.mu.Unlock()

			m.closeSession(stale)
		})
	}
}

// fanOut forwards sidebar session events to the current listeners.
func (m *Multiplexer) fanOut() session.Handlers {
	each := func(fn func(session.Handlers)) {
		for _, h := range m.listenerSnapshot() {
			fn(h)
		}
	}
	return session.Handlers{
		OnData: func(u session.Update) {
			each(func(h session.Handlers) {
				if h.OnData != nil {
					h.OnData(u)
				}
			})
		},
		OnError: func(err error) {
			each(func(h session.Handlers) {
				if h.OnError != nil {
					h.OnError(err)
				}
			})
		},
		OnConnectivity: func(connected bool) {
			each(func(h session.Handlers) {
				if h.OnConnectivity != nil {
					h.OnConnectivity(connected)
				}
			})
		},
		OnState: func(s session.State) {
			each(func(h session.Handlers) {
				if h.OnState != nil {
					h.OnState(s)
				}
			})
		},
	}
}

func (m *Multiplexer) listenerSnapshot() []session.Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]session.Handlers, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}

// SetMonitoringEnabled flips the process-wide switch. Disabling tears down
// every session and cancels every pending retry. Enabling does not reconnect;
// callers must Connect or Subscribe again.
func (m *Multiplexer) SetMonitoringEnabled(enabled bool) {
	was := m.sw.Set(enabled)
	if enabled || !was {
		return
	}
	m.log.Info("monitoring disabled, closing all streams")
	m.teardown(false)
}

// Close tears down every session and detaches all listeners. The
// multiplexer refuses new subscriptions afterwards.
func (m *Multiplexer) Close() {
	m.teardown(true)
}

func (m *Multiplexer) teardown(final bool) {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.entries))
	for s := range m.entries {
		sessions = append(sessions, s)
	}
	m.entries = make(map[*session.Session]*entry)
	m.shared = make(map[session.EndpointKey]*entry)
	m.sidebar = nil
	if final {
		m.closed = true
		m.listeners = make(map[int]session.Handlers)
	}
	m.mu.Unlock()

	m.policy.CancelAll()
	for _, s := range sessions {
		m.closeSession(s)
	}
}

// Stats returns a snapshot of the registry.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	st := Stats{
		Enabled:        m.sw.Enabled(),
		Sessions:       len(m.entries),
		SharedSessions: len(m.shared),
		Listeners:      len(m.listeners),
	}
	for _, e := range m.entries {
		st.Subscriptions += e.subs
	}
	if m.sidebar != nil {
		st.SidebarNode = m.sidebar.nodeID
	}
	m.mu.Unlock()

	st.PendingRetries = m.policy.PendingCount()
	return st
}

// Subscription is one consumer's handle on a session.
type Subscription struct {
	m     *Multiplexer
	entry *entry
	id    int
	once  sync.Once
}

// Session returns the underlying session, for buffer snapshots and restarts.
func (s *Subscription) Session() *session.Session {
	return s.entry.session
}

// Close releases the subscription. It satisfies the lifecycle closer
// signature; the intent flag is ignored since releases are always deliberate.
func (s *Subscription) Close(bool) {
	s.Release()
}

// Release detaches the subscription. The last release for a session closes
// it. Safe to call repeatedly.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.m.release(s.entry, s.id)
	})
}
