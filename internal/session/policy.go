package session

import (
	"sync"
	"time"

	"github.com/rileyhilliard/nodewatch/internal/logger"
)

// DefaultRetryDelay is the fixed wait between a drop and the next attempt.
const DefaultRetryDelay = 3 * time.Second

// Timer is the subset of *time.Timer the policy needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Policy schedules reconnect attempts with a fixed delay.
//
// At most one retry is pending per session; further requests while one is
// pending are ignored. A retry is skipped, both when requested and when the
// timer fires, if the close was intentional, monitoring is switched off, or
// the session has no subscribers left. MaxAttempts of zero retries forever;
// a positive value gives up after that many consecutive failed attempts.
type Policy struct {
	delay       time.Duration
	maxAttempts int
	sw          *Switch
	after       AfterFunc
	log         logger.Logger

	mu       sync.Mutex
	pending  map[*Session]*retry
	attempts map[*Session]int
}

type retry struct {
	timer Timer
}

// PolicyOption customizes a Policy.
type PolicyOption func(*Policy)

// WithMaxAttempts caps consecutive failed attempts. Zero means unbounded.
func WithMaxAttempts(n int) PolicyOption {
	return func(p *Policy) { p.maxAttempts = n }
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(after AfterFunc) PolicyOption {
	return func(p *Policy) { p.after = after }
}

// WithLogger sets the policy logger.
func WithLogger(log logger.Logger) PolicyOption {
	return func(p *Policy) { p.log = log }
}

// NewPolicy creates a policy observing sw. A non-positive delay uses
// DefaultRetryDelay.
func NewPolicy(delay time.Duration, sw *Switch, opts ...PolicyOption) *Policy {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	p := &Policy{
		delay:    delay,
		sw:       sw,
		after:    realAfterFunc,
		log:      logger.Noop(),
		pending:  make(map[*Session]*retry),
		attempts: make(map[*Session]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay returns the fixed retry delay.
func (p *Policy) Delay() time.Duration {
	return p.delay
}

// ScheduleRetry arranges for s.Open to be called after the delay.
func (p *Policy) ScheduleRetry(s *Session, reason error) {
	if p == nil || !p.allowed(s) {
		return
	}

	p.mu.Lock()
	if _, ok := p.pending[s]; ok {
		p.mu.Unlock()
		return
	}
	attempts := p.attempts[s] + 1
	if p.maxAttempts > 0 && attempts > p.maxAttempts {
		p.mu.Unlock()
		p.log.Warn("giving up on %s after %d attempts", s.Endpoint(), p.maxAttempts)
		s.exhausted(p.maxAttempts)
		return
	}
	p.attempts[s] = attempts
	r := &retry{}
	p.pending[s] = r
	r.timer = p.after(p.delay, func() { p.fire(s, r) })
	p.mu.Unlock()

	p.log.Debug("retrying %s in %s (attempt %d): %v", s.Endpoint(), p.delay, attempts, reason)
}

func (p *Policy) fire(s *Session, r *retry) {
	p.mu.Lock()
	if p.pending[s] != r {
		p.mu.Unlock()
		return
	}
	delete(p.pending, s)
	p.mu.Unlock()

	if !p.allowed(s) {
		return
	}
	if err := s.Open(); err != nil {
		p.log.Warn("retry of %s failed: %v", s.Endpoint(), err)
	}
}

func (p *Policy) allowed(s *Session) bool {
	return p.sw.Enabled() && !s.closedIntentionally() && s.Subscribers() > 0
}

// Cancel stops the pending retry for s, if any.
func (p *Policy) Cancel(s *Session) {
	if p == nil {
		return
	}
	p.mu.Lock()
	r, ok := p.pending[s]
	delete(p.pending, s)
	p.mu.Unlock()

	if ok && r.timer != nil {
		r.timer.Stop()
	}
}

// CancelAll stops every pending retry.
func (p *Policy) CancelAll() {
	if p == nil {
		return
	}
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[*Session]*retry)
	p.mu.Unlock()

	for _, r := range pending {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
}

// Succeeded resets the attempt counter after a successful open.
func (p *Policy) Succeeded(s *Session) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.attempts, s)
	p.mu.Unlock()
}

// Forget drops all state for s.
func (p *Policy) Forget(s *Session) {
	p.Cancel(s)
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.attempts, s)
	p.mu.Unlock()
}

// Pending reports whether a retry is scheduled for s.
func (p *Policy) Pending(s *Session) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[s]
	return ok
}

// PendingCount returns the number of scheduled retries.
func (p *Policy) PendingCount() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
