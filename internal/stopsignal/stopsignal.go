// Package stopsignal is the cross-thread wake the daemon uses to break
// out of its accept/dispatch loop on shutdown. §5 of the spec describes
// a self-pipe on Unix; a closed channel gives the same "wake every
// blocked reader exactly once, forever after" guarantee without a raw
// fd, and composes with select the way the rest of this codebase is
// written.
package stopsignal

import "sync"

type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Stop fires the signal. Safe to call more than once and from any
// goroutine.
func (s *Signal) Stop() {
	s.once.Do(func() { close(s.ch) })
}

// C is closed once Stop has been called.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

func (s *Signal) Stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
