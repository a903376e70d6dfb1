package render

import (
	"image"
	"io"
	"log"
	"sync"
	"time"
	"weak"

	"github.com/mhbvr/collage"
	"golang.org/x/image/draw"
	"k8s.io/utils/clock"
)

// DefaultInterval is the minimum time between two throttled renders.
const DefaultInterval = 500 * time.Millisecond

// Scheduler runs fn on the owner's execution context.
type Scheduler func(fn func())

// Option configures a Renderer.
type Option func(*Renderer)

// Renderer redraws a Preview whenever the photo set changes.
//
// With a zero interval every notification is rendered synchronously. With a
// positive interval the first notification of a quiet period arms a timer,
// later notifications replace the pending value, and the timer renders only
// the latest one. The timer's delivery goes through the Scheduler so the
// render happens on the same context that produces notifications.
//
// The Renderer only keeps a weak reference to its Preview; once the target
// is garbage collected renders are no-ops.
type Renderer struct {
	target   weak.Pointer[Preview]
	interval time.Duration
	clock    clock.WithDelayedExecution
	schedule Scheduler
	scaler   draw.Scaler
	onRender func(photos []*collage.Photo, img image.Image)
	logger   *log.Logger

	mu      sync.Mutex
	pending []*collage.Photo
	timer   clock.Timer
	armed   uint64
	stopped bool
	renders int
}

// NewRenderer creates a renderer targeting preview.
func NewRenderer(preview *Preview, opts ...Option) *Renderer {
	r := &Renderer{
		target:   weak.Make(preview),
		interval: DefaultInterval,
		clock:    clock.RealClock{},
		schedule: func(fn func()) { fn() },
		scaler:   draw.BiLinear,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithInterval sets the throttle interval; 0 disables throttling.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		r.interval = d
	}
}

func WithClock(c clock.WithDelayedExecution) Option {
	return func(r *Renderer) {
		r.clock = c
	}
}

func WithScheduler(s Scheduler) Option {
	return func(r *Renderer) {
		r.schedule = s
	}
}

func WithScaler(s draw.Scaler) Option {
	return func(r *Renderer) {
		r.scaler = s
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithRenderHook installs a callback invoked after each completed render.
func WithRenderHook(fn func(photos []*collage.Photo, img image.Image)) Option {
	return func(r *Renderer) {
		r.onRender = fn
	}
}

// Observe is a photoset.Observer.
func (r *Renderer) Observe(photos []*collage.Photo) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.interval <= 0 {
		r.mu.Unlock()
		r.render(photos)
		return
	}

	r.pending = photos
	if r.timer == nil {
		r.armed++
		armed := r.armed
		r.timer = r.clock.AfterFunc(r.interval, func() {
			r.schedule(func() { r.deliver(armed) })
		})
	}
	r.mu.Unlock()
}

// Stop cancels any pending render. Later notifications are ignored.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil
}

// Renders returns how many times the preview was redrawn.
func (r *Renderer) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Pending reports whether a throttled render is scheduled.
func (r *Renderer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Flush renders the pending value now instead of waiting for the timer.
// Readers that need the preview to match the photo set call it first.
func (r *Renderer) Flush() {
	r.mu.Lock()
	if r.stopped || r.timer == nil {
		r.mu.Unlock()
		return
	}
	r.timer.Stop()
	photos := r.pending
	r.pending = nil
	r.timer = nil
	r.mu.Unlock()

	r.render(photos)
}

// deliver renders the pending value for timer number armed. Deliveries from
// a timer that was flushed or stopped since are dropped.
func (r *Renderer) deliver(armed uint64) {
	r.mu.Lock()
	if r.stopped || r.timer == nil || r.armed != armed {
		r.mu.Unlock()
		return
	}
	photos := r.pending
	r.pending = nil
	r.timer = nil
	r.mu.Unlock()

	r.render(photos)
}

func (r *Renderer) render(photos []*collage.Photo) {
	preview := r.target.Value()
	if preview == nil {
		r.logger.Printf("Preview is gone, skipping render of %d photos", len(photos))
		return
	}

	img := CollageWith(r.scaler, photos, preview.Size())
	preview.set(img)

	r.mu.Lock()
	r.renders++
	r.mu.Unlock()

	if r.onRender != nil {
		r.onRender(photos, img)
	}
}
