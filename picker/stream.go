// Package picker models the stream of candidate photos produced while the
// user picks images, and the completion signal sent when picking ends.
package picker

import (
	"errors"

	"github.com/mhbvr/collage"
)

var ErrCompleted = errors.New("picker: stream already completed")

// Observer reacts to stream events. Either callback may be nil.
type Observer struct {
	OnNext     func(*collage.Photo)
	OnComplete func()
}

// Subscription is returned by Subscribe. Dispose stops delivery to the observer.
type Subscription struct {
	stream    *Stream
	observer  Observer
	disposed  bool
	onDispose func()
}

// Dispose detaches the observer. It is safe to call from inside a callback
// and more than once.
func (s *Subscription) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.stream.remove(s)
	if s.onDispose != nil {
		s.onDispose()
	}
}

// Disposed reports whether the subscription no longer receives events.
func (s *Subscription) Disposed() bool { return s.disposed }

// Stream is a shared candidate stream: every subscriber sees each event
// exactly once, late subscribers do not see earlier events and the producer
// is driven once regardless of the number of subscribers.
//
// Stream is not safe for concurrent use; events are delivered on the
// caller's goroutine.
type Stream struct {
	subs      []*Subscription
	completed bool
	emitted   int
}

func NewStream() *Stream {
	return &Stream{}
}

// Subscribe registers an observer. onDispose, if given, runs once when the
// subscription ends, either by Dispose or by stream completion.
func (s *Stream) Subscribe(o Observer, onDispose ...func()) (*Subscription, error) {
	if s.completed {
		return nil, ErrCompleted
	}
	sub := &Subscription{stream: s, observer: o}
	if len(onDispose) > 0 {
		sub.onDispose = onDispose[0]
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Next delivers a candidate to current subscribers. Ignored after Complete.
func (s *Stream) Next(p *collage.Photo) {
	if s.completed {
		return
	}
	s.emitted++
	for _, sub := range s.snapshot() {
		if sub.disposed || sub.observer.OnNext == nil {
			continue
		}
		sub.observer.OnNext(p)
	}
}

// Complete ends the stream, notifying and then disposing every subscriber.
func (s *Stream) Complete() {
	if s.completed {
		return
	}
	s.completed = true
	for _, sub := range s.snapshot() {
		if sub.disposed {
			continue
		}
		if sub.observer.OnComplete != nil {
			sub.observer.OnComplete()
		}
		sub.Dispose()
	}
}

func (s *Stream) Completed() bool { return s.completed }

// Emitted returns the number of candidates delivered so far.
func (s *Stream) Emitted() int { return s.emitted }

// Subscribers returns the number of active subscriptions.
func (s *Stream) Subscribers() int { return len(s.subs) }

func (s *Stream) snapshot() []*Subscription {
	return append([]*Subscription(nil), s.subs...)
}

func (s *Stream) remove(sub *Subscription) {
	for i, v := range s.subs {
		if v == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
