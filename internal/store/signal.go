package store

// Signal is a level-triggered, coalescing change notification: any number of
// raises before the consumer looks collapse into a single wake-up. It is not
// a queue.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a lowered Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Raise marks new content as available. Never blocks; raising an already
// raised signal is a no-op.
func (s *Signal) Raise() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns a channel that delivers one value while the signal is raised.
// Receiving from it lowers the signal.
func (s *Signal) Wait() <-chan struct{} {
	return s.ch
}

// Raised reports and lowers the signal in one step.
func (s *Signal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Drain lowers the signal without reporting.
func (s *Signal) Drain() {
	select {
	case <-s.ch:
	default:
	}
}
