// Package uistate derives the editor controls' state from the photo count.
package uistate

import (
	"fmt"
	"sync"

	"github.com/mhbvr/collage"
)

// DefaultTitle is shown while the collage is empty.
const DefaultTitle = "Collage"

// State is the derived state of the editor controls.
type State struct {
	Count        int
	SaveEnabled  bool
	ClearEnabled bool
	AddEnabled   bool
	Title        string
}

// Derive computes control state for count photos out of max.
// Saving needs a non-empty, even number of photos.
func Derive(count, max int) State {
	s := State{
		Count:        count,
		SaveEnabled:  count > 0 && count%2 == 0,
		ClearEnabled: count > 0,
		AddEnabled:   count < max,
		Title:        DefaultTitle,
	}
	if count > 0 {
		s.Title = fmt.Sprintf("%d photos", count)
	}
	return s
}

// Panel recomputes the control state on every photo set notification.
type Panel struct {
	max int

	mu       sync.RWMutex
	state    State
	updates  int
	onChange func(State)
}

// NewPanel creates a panel for a set of at most max photos.
// onChange, when not nil, is called after every recompute.
func NewPanel(max int, onChange func(State)) *Panel {
	return &Panel{
		max:      max,
		state:    Derive(0, max),
		onChange: onChange,
	}
}

// Observe is a photoset.Observer.
func (p *Panel) Observe(photos []*collage.Photo) {
	s := Derive(len(photos), p.max)

	p.mu.Lock()
	p.state = s
	p.updates++
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(s)
	}
}

func (p *Panel) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Updates returns the number of notifications observed.
func (p *Panel) Updates() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updates
}
