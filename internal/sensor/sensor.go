// Package sensor delivers step-detector readings to a single listener.
package sensor

import (
	"errors"
	"sync"
)

var (
	ErrUnavailable = errors.New("step detector unavailable")
	ErrBusy        = errors.New("step detector already has a listener")
)

// Listener receives raw readings. A step detector reports 1 for a step and
// may report 0 when it falls back.
type Listener func(value float64)

type Subscription interface {
	Close()
}

type Detector interface {
	Available() bool
	Subscribe(l Listener) (Subscription, error)
}

// Publisher is implemented by detectors that accept pushed readings.
type Publisher interface {
	Publish(value float64) bool
}

// Feed is an in-process detector fed by Publish. Readings published while
// nobody is subscribed are dropped.
type Feed struct {
	mu       sync.Mutex
	listener Listener
	gen      uint64
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Available() bool {
	return true
}

func (f *Feed) Subscribe(l Listener) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listener != nil {
		return nil, ErrBusy
	}

	f.gen++
	f.listener = l

	return &feedSubscription{feed: f, gen: f.gen}, nil
}

// Publish hands value to the current listener. It reports whether a
// listener was subscribed.
func (f *Feed) Publish(value float64) bool {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()

	if l == nil {
		return false
	}
	l(value)
	return true
}

// Subscribed reports whether a listener is attached.
func (f *Feed) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener != nil
}

type feedSubscription struct {
	feed *Feed
	gen  uint64
	once sync.Once
}

func (s *feedSubscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()

		// A newer subscription may already own the feed.
		if s.feed.gen == s.gen {
			s.feed.listener = nil
		}
	})
}

// None is a detector for devices without a step sensor.
type None struct{}

func (None) Available() bool { return false }

func (None) Subscribe(Listener) (Subscription, error) {
	return nil, ErrUnavailable
}

// Disabled wraps a missing sensor so that sessions still run with step
// counting switched off.
type Disabled struct{}

func (Disabled) Available() bool { return true }

func (Disabled) Subscribe(Listener) (Subscription, error) {
	return noopSubscription{}, nil
}

type noopSubscription struct{}

func (noopSubscription) Close() {}
