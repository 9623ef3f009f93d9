package session

// State is the streaming session's lifecycle position. Exactly one session
// owns each State value; transitions are serialized under the session lock.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateStreaming   State = "streaming"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
)

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev == state {
		return
	}
	s.log.Debug("state", "from", prev, "to", state)
	if s.metrics != nil {
		s.metrics.StateChanges.WithLabelValues(string(state)).Inc()
	}
	s.emit(Event{Kind: EventStateChanged, State: state})
}

// compareAndSetState transitions to next only when the current state is
// want, returning whether the swap happened.
func (s *Session) compareAndSetState(want, next State) bool {
	s.mu.Lock()
	if s.state != want {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()
	s.log.Debug("state", "from", want, "to", next)
	if s.metrics != nil {
		s.metrics.StateChanges.WithLabelValues(string(next)).Inc()
	}
	s.emit(Event{Kind: EventStateChanged, State: next})
	return true
}
