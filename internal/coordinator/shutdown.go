package coordinator

import (
	"sync"
	"sync/atomic"
)

// Shutdown is a one-way flag raised by an interrupt. Loops poll it at
// iteration boundaries; sleepers select on Done.
type Shutdown struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewShutdown returns an unset flag.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Set raises the flag. Repeated calls are no-ops.
func (s *Shutdown) Set() {
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
	})
}

// IsSet reports whether Set was called. A nil Shutdown is never set.
func (s *Shutdown) IsSet() bool {
	return s != nil && s.set.Load()
}

// Done is closed when the flag is raised. A nil Shutdown returns a nil
// channel, which blocks forever.
func (s *Shutdown) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}
