package session

import "sync/atomic"

// Switch is the process-wide monitoring flag. When disabled no retry is
// scheduled or fired. A nil *Switch reads as enabled.
type Switch struct {
	disabled atomic.Bool
}

// NewSwitch returns a switch in the given state.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.disabled.Store(!enabled)
	return s
}

// Enabled reports whether monitoring is on.
func (s *Switch) Enabled() bool {
	if s == nil {
		return true
	}
	return !s.disabled.Load()
}

// Set turns monitoring on or off and returns the previous state.
func (s *Switch) Set(enabled bool) bool {
	return !s.disabled.Swap(!enabled)
}
