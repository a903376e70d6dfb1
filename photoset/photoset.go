// Package photoset holds the authoritative ordered set of photos of a collage
// and broadcasts every change of it to subscribers.
package photoset

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mhbvr/collage"
)

// MaxPhotos is the default capacity of a photo set.
const MaxPhotos = 6

var (
	ErrClosed         = errors.New("photoset: state is closed")
	ErrFull           = errors.New("photoset: capacity reached")
	ErrReentrantWrite = errors.New("photoset: mutation during notification")
)

// Observer receives the complete photo sequence after each mutation.
// The slice is a private copy owned by the observer.
type Observer func(photos []*collage.Photo)

type subscription struct {
	id string
	fn Observer
}

// State is a single-writer observable sequence of photos.
//
// Every successful Append or Clear synchronously delivers the new full
// sequence to all subscribers, in subscription order, before returning.
// State is not safe for concurrent use; all calls must come from one
// goroutine (the editor loop).
type State struct {
	max       int
	photos    []*collage.Photo
	subs      []subscription
	notifying bool
	closed    bool
}

// New creates an empty State holding at most max photos (MaxPhotos when max <= 0).
func New(max int) *State {
	if max <= 0 {
		max = MaxPhotos
	}
	return &State{max: max}
}

func (s *State) Max() int { return s.max }

func (s *State) Len() int { return len(s.photos) }

// Photos returns a copy of the current sequence.
func (s *State) Photos() []*collage.Photo {
	return s.snapshot()
}

// Subscribe registers fn and returns the subscription id.
// The observer only sees mutations made after subscribing.
func (s *State) Subscribe(fn Observer) string {
	id := uuid.NewString()
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscription. It reports whether the id was found.
func (s *State) Unsubscribe(id string) bool {
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Append adds a photo to the end of the sequence.
func (s *State) Append(p *collage.Photo) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if len(s.photos) >= s.max {
		return ErrFull
	}
	s.photos = append(s.photos, p)
	s.notify()
	return nil
}

// Clear empties the sequence in one step.
func (s *State) Clear() error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.photos = nil
	s.notify()
	return nil
}

// Close drops all subscribers and rejects further mutations.
func (s *State) Close() {
	s.closed = true
	s.subs = nil
}

func (s *State) checkWritable() error {
	if s.closed {
		return ErrClosed
	}
	if s.notifying {
		return ErrReentrantWrite
	}
	return nil
}

func (s *State) snapshot() []*collage.Photo {
	out := make([]*collage.Photo, len(s.photos))
	copy(out, s.photos)
	return out
}

func (s *State) notify() {
	s.notifying = true
	defer func() { s.notifying = false }()

	// Subscribers added or removed during fan-out take effect on the next mutation
	subs := append([]subscription(nil), s.subs...)
	for _, sub := range subs {
		sub.fn(s.snapshot())
	}
}
