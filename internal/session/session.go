// Package session owns the lifecycle of one streaming connection: dialing with
// a fresh credential, answering keepalives, decoding frames into stream
// buffers, fanning records out to subscribers and recovering from drops.
//
// Every socket gets its own reader goroutine and a liveness token. Close bumps
// the token before releasing the socket, so events still queued on a detached
// socket are dropped instead of mutating state or triggering a reconnect.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/credential"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/stream"
	"github.com/rileyhilliard/nodewatch/internal/transport"
)

const retrySuggestion = "Press r to retry"

// Update is one decoded sample delivered to subscribers.
type Update struct {
	Stream   string
	Category codec.Category
	Sample   stream.Sample
}

// Handlers is a subscriber's callback set. Nil callbacks are skipped.
type Handlers struct {
	OnData         func(Update)
	OnError        func(error)
	OnConnectivity func(connected bool)
	OnState        func(State)
}

// Options configures a Session.
type Options struct {
	Credential credential.Provider
	Dialer     transport.Dialer
	// Decoder defaults to a codec.Router.
	Decoder codec.Decoder
	// BufferSize is the capacity of each stream buffer.
	BufferSize int
	// Policy schedules reconnects. Nil disables recovery.
	Policy *Policy
	Logger logger.Logger
}

// Session owns one physical socket to one endpoint.
type Session struct {
	endpoint Endpoint
	opts     Options
	store    *stream.Store
	log      logger.Logger

	mu          sync.Mutex
	state       State
	errored     bool
	intentional bool
	generation  uint64
	conn        transport.Conn
	cancelDial  context.CancelFunc
	readerDone  chan struct{}
	subs        map[int]Handlers
	nextSubID   int
}

// New creates an idle session for endpoint.
func New(endpoint Endpoint, opts Options) *Session {
	if opts.Decoder == nil {
		opts.Decoder = codec.NewRouter()
	}
	if opts.Dialer == nil {
		opts.Dialer = transport.NewWebSocketDialer(0, 0)
	}
	if opts.Credential == nil {
		opts.Credential = credential.Static("")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}

	done := make(chan struct{})
	close(done)

	return &Session{
		endpoint:   endpoint,
		opts:       opts,
		store:      stream.NewStore(opts.BufferSize),
		log:        log,
		readerDone: done,
		subs:       make(map[int]Handlers),
	}
}

// Endpoint returns the session's endpoint.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Store returns the session's stream buffers.
func (s *Session) Store() *stream.Store {
	return s.store
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Errored reports whether a socket error was seen since the last open.
func (s *Session) Errored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errored
}

// RetryPending reports whether a reconnect is scheduled.
func (s *Session) RetryPending() bool {
	return s.opts.Policy.Pending(s)
}

// Done returns a channel closed once the reader of the most recent socket has
// exited.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readerDone
}

// Subscribe registers h and returns its id.
func (s *Session) Subscribe(h Handlers) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	s.subs[s.nextSubID] = h
	return s.nextSubID
}

// Unsubscribe removes the subscriber and returns how many remain.
func (s *Session) Unsubscribe(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	return len(s.subs)
}

// Subscribers returns the number of registered subscribers.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Open fetches a credential and starts connecting. It is a no-op while the
// session is connecting or open. A missing credential leaves the state
// untouched, reports a CREDENTIAL error to subscribers and returns it.
//
// If the previous socket is still tearing down, the new dial waits for its
// reader to exit so two sockets never race for the same session.
func (s *Session) Open() error {
	token, ok := s.opts.Credential.Credential()

	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return nil
	}
	if !ok || token == "" {
		subs := s.snapshot()
		s.mu.Unlock()
		err := errors.New(errors.ErrCredential,
			"No credential available for "+s.endpoint.Key().String(),
			"Set NODEWATCH_TOKEN or credential.token in .nodewatch.yaml, then press r to retry")
		s.emitError(subs, err)
		return err
	}

	s.generation++
	gen := s.generation
	s.intentional = false
	s.errored = false
	s.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	prev := s.readerDone
	done := make(chan struct{})
	s.readerDone = done
	subs := s.snapshot()
	s.mu.Unlock()

	s.opts.Policy.Cancel(s)
	s.log.Debug("connecting to %s", s.endpoint)
	s.emitState(subs, StateConnecting)

	go s.run(ctx, gen, prev, done, s.endpoint.URL(token))
	return nil
}

// Close detaches the current socket and releases it. Intentional closes
// cancel any pending retry; unintentional ones ask the policy for a fresh
// attempt. Safe to call repeatedly.
func (s *Session) Close(intentional bool) {
	s.mu.Lock()
	s.generation++
	s.intentional = intentional
	prevState := s.state
	conn := s.conn
	cancel := s.cancelDial
	s.conn = nil
	s.cancelDial = nil
	if prevState.Active() {
		s.state = StateClosing
	}
	subs := s.snapshot()
	s.mu.Unlock()

	if intentional {
		s.opts.Policy.Cancel(s)
	}
	if cancel != nil {
		cancel()
	}

	if prevState.Active() {
		s.emitState(subs, StateClosing)
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.log.Debug("closing %s: %v", s.endpoint, err)
			}
		}

		s.mu.Lock()
		if s.state == StateClosing {
			s.state = StateClosed
		}
		s.mu.Unlock()

		s.emitState(subs, StateClosed)
		if prevState == StateOpen {
			s.emitConnectivity(subs, false)
		}
	}

	if !intentional {
		s.opts.Policy.ScheduleRetry(s, errors.New(errors.ErrTransport, "Connection recycled", ""))
	}
}

// Restart closes the session, clears its buffers and opens it again.
// Sequence numbers start over from zero.
func (s *Session) Restart() error {
	s.Close(true)
	s.store.ResetAll()
	return s.Open()
}

// closedIntentionally reports whether the caller asked for the last teardown.
func (s *Session) closedIntentionally() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentional
}

// run dials, then reads until the socket closes.
func (s *Session) run(ctx context.Context, gen uint64, prev <-chan struct{}, done chan struct{}, url string) {
	defer close(done)

	select {
	case <-prev:
	case <-ctx.Done():
		return
	}

	conn, err := s.opts.Dialer.Dial(ctx, url)
	if err != nil {
		s.handleDialFailure(gen, err)
		return
	}
	if !s.attach(gen, conn) {
		_ = conn.Close()
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(gen, transport.AsCloseError(err))
			return
		}
		s.handleMessage(gen, conn, data)
	}
}

// attach installs a freshly dialed socket unless the session moved on while
// the handshake was in flight.
func (s *Session) attach(gen uint64, conn transport.Conn) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.state = StateOpen
	s.errored = false
	s.opts.Policy.Succeeded(s)
	subs := s.snapshot()
	s.mu.Unlock()

	s.log.Debug("connected to %s", s.endpoint)
	s.emitState(subs, StateOpen)
	s.emitConnectivity(subs, true)
	return true
}

func (s *Session) handleMessage(gen uint64, conn transport.Conn, data []byte) {
	frame, err := codec.ParseFrame(data)
	if err != nil {
		subs, ok := s.live(gen)
		if !ok {
			return
		}
		s.log.Warn("dropping frame from %s: %v", s.endpoint, err)
		s.emitError(subs, errors.WrapWithCode(err, errors.ErrDecode, "Dropped malformed frame", ""))
		return
	}

	switch frame.Kind {
	case codec.KindPing:
		if _, ok := s.live(gen); !ok {
			return
		}
		if err := conn.WriteMessage(codec.PongFrame()); err != nil {
			s.handleSocketError(gen, err)
		}

	case codec.KindPong:

	case codec.KindError:
		subs, ok := s.live(gen)
		if !ok {
			return
		}
		s.emitError(subs, errors.New(errors.ErrServer, frame.Message, ""))

	case codec.KindMetrics:
		records, err := s.opts.Decoder.Decode(frame)
		if err != nil {
			subs, ok := s.live(gen)
			if !ok {
				return
			}
			s.log.Warn("dropping %s frame from %s: %v", frame.Type, s.endpoint, err)
			s.emitError(subs, errors.WrapWithCode(err, errors.ErrDecode, "Dropped undecodable frame", ""))
			return
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		updates := make([]Update, 0, len(records))
		for _, rec := range records {
			sample := s.store.Push(rec.Stream, rec.Value, rec.Fields, rec.Labels)
			updates = append(updates, Update{Stream: rec.Stream, Category: rec.Category, Sample: sample})
		}
		subs := s.snapshot()
		s.mu.Unlock()

		for _, u := range updates {
			s.emitData(subs, u)
		}
	}
}

// handleSocketError marks the session errored without closing it; the close
// that follows drives recovery.
func (s *Session) handleSocketError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.errored = true
	subs := s.snapshot()
	s.mu.Unlock()

	s.log.Warn("socket error on %s: %v", s.endpoint, err)
	s.emitError(subs, errors.WrapWithCode(err, errors.ErrTransport, "Connection error", ""))
}

// handleDialFailure treats a failed handshake as an error followed by an
// abnormal close.
func (s *Session) handleDialFailure(gen uint64, err error) {
	ce := &transport.CloseError{Code: transport.CloseAbnormal, Err: err}
	var hs *transport.HandshakeError
	if stderrors.As(err, &hs) && hs.IsAuthStatus() {
		ce.Code = transport.ClosePolicyViolation
	}
	s.handleSocketError(gen, err)
	s.handleClose(gen, ce)
}

func (s *Session) handleClose(gen uint64, ce *transport.CloseError) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.cancelDial = nil
	s.state = StateClosed
	intentional := s.intentional
	subs := s.snapshot()
	s.mu.Unlock()

	reason := classifyClose(ce)
	s.log.Info("%s closed: %v", s.endpoint, ce)
	s.emitState(subs, StateClosed)
	s.emitConnectivity(subs, false)
	s.emitError(subs, reason)

	if !intentional {
		s.opts.Policy.ScheduleRetry(s, reason)
	}
}

// classifyClose maps a close code to the error subscribers see.
func classifyClose(ce *transport.CloseError) *errors.Error {
	switch {
	case transport.IsAuthFailure(ce.Code):
		return errors.WrapWithCode(ce, errors.ErrAuth,
			"Server rejected the credential",
			"Check the token; the stream retries automatically with a fresh credential")
	case ce.Clean && transport.IsNormal(ce.Code):
		return errors.WrapWithCode(ce, errors.ErrTransport, "Stream closed by server", retrySuggestion)
	case ce.Clean:
		return errors.WrapWithCode(ce, errors.ErrTransport,
			fmt.Sprintf("Stream closed by server with code %d", ce.Code), retrySuggestion)
	default:
		return errors.WrapWithCode(ce, errors.ErrTransport, "Connection lost", retrySuggestion)
	}
}

// live returns the subscriber snapshot if gen is still current.
func (s *Session) live(gen uint64) ([]Handlers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, false
	}
	return s.snapshot(), true
}

// snapshot copies the subscriber set. Must be called with s.mu held.
func (s *Session) snapshot() []Handlers {
	out := make([]Handlers, 0, len(s.subs))
	for id := 1; id <= s.nextSubID; id++ {
		if h, ok := s.subs[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// exhausted reports that the policy gave up.
func (s *Session) exhausted(attempts int) {
	s.mu.Lock()
	subs := s.snapshot()
	s.mu.Unlock()

	s.emitError(subs, errors.New(errors.ErrExhausted,
		fmt.Sprintf("Gave up on %s after %d attempts", s.endpoint.Key(), attempts), retrySuggestion))
}

func (s *Session) emitData(subs []Handlers, u Update) {
	for _, h := range subs {
		if h.OnData != nil {
			s.safely("OnData", func() { h.OnData(u) })
		}
	}
}

func (s *Session) emitError(subs []Handlers, err error) {
	for _, h := range subs {
		if h.OnError != nil {
			s.safely("OnError", func() { h.OnError(err) })
		}
	}
}

func (s *Session) emitConnectivity(subs []Handlers, connected bool) {
	for _, h := range subs {
		if h.OnConnectivity != nil {
			s.safely("OnConnectivity", func() { h.OnConnectivity(connected) })
		}
	}
}

func (s *Session) emitState(subs []Handlers, state State) {
	for _, h := range subs {
		if h.OnState != nil {
			s.safely("OnState", func() { h.OnState(state) })
		}
	}
}

// safely runs a subscriber callback, containing panics.
func (s *Session) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("%s handler for %s panicked: %v", name, s.endpoint, r)
		}
	}()
	fn()
}
