// Package editor is the collage editing controller. It owns the photo set,
// the fingerprint cache and the preview, and runs every event that touches
// them on a single goroutine.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/fingerprint"
	"github.com/mhbvr/collage/photoset"
	"github.com/mhbvr/collage/render"
	"github.com/mhbvr/collage/uistate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/draw"
	"k8s.io/utils/clock"
)

var (
	ErrClosed        = errors.New("editor closed")
	ErrNothingToSave = errors.New("nothing to save")
	ErrNoWriter      = errors.New("no photo writer configured")
	ErrSaveDisabled  = errors.New("save needs an even, non-zero number of photos")

	tracer = otel.Tracer("editor")
)

// DefaultPreviewSize is the preview size used when none is configured.
var DefaultPreviewSize = image.Pt(1200, 800)

// FingerprintScope controls when the duplicate cache is emptied.
type FingerprintScope string

const (
	// ScopePhotoSet empties the cache only when the photo set is cleared,
	// so duplicates stay rejected across selection sessions.
	ScopePhotoSet FingerprintScope = "photoset"
	// ScopeSession also empties the cache whenever a session opens.
	ScopeSession FingerprintScope = "session"
)

// Notifier shows a message to the user.
type Notifier interface {
	Notify(title, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, text string)

func (f NotifierFunc) Notify(title, text string) { f(title, text) }

type Option func(*Editor)

// Editor is the collage controller.
type Editor struct {
	ctx         context.Context
	cancelCause context.CancelCauseFunc
	calls       chan func()
	stopped     chan struct{}
	busy        atomic.Int64

	// Owned by the loop goroutine
	set      *photoset.State
	cache    *fingerprint.Cache
	preview  *render.Preview
	renderer *render.Renderer
	panel    *uistate.Panel
	navIcon  image.Image
	sessions map[*Session]struct{}

	maxPhotos   int
	interval    time.Duration
	previewSize image.Point
	scope       FingerprintScope
	fp          fingerprint.Func
	scaler      draw.Scaler
	clock       clock.WithDelayedExecution
	writer      collage.PhotoWriter
	notifier    Notifier
	metrics     *Metrics
	logger      *log.Logger
}

// New starts an editor. The editor stops when ctx is cancelled or Close is called.
func New(ctx context.Context, opts ...Option) (*Editor, error) {
	e := &Editor{
		calls:       make(chan func()),
		stopped:     make(chan struct{}),
		sessions:    make(map[*Session]struct{}),
		maxPhotos:   photoset.MaxPhotos,
		interval:    render.DefaultInterval,
		previewSize: DefaultPreviewSize,
		scope:       ScopePhotoSet,
		fp:          fingerprint.EncodedSize,
		scaler:      draw.BiLinear,
		clock:       clock.RealClock{},
		logger:      log.New(io.Discard, "", 0),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.maxPhotos <= 0 {
		return nil, fmt.Errorf("maxPhotos must be positive, got %d", e.maxPhotos)
	}
	if e.interval < 0 {
		return nil, fmt.Errorf("render interval < 0")
	}
	if e.scope != ScopePhotoSet && e.scope != ScopeSession {
		return nil, fmt.Errorf("unknown fingerprint scope: %s", e.scope)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.notifier == nil {
		e.notifier = NotifierFunc(func(title, text string) {
			e.logger.Printf("%s %s", title, text)
		})
	}

	e.set = photoset.New(e.maxPhotos)
	e.cache = fingerprint.NewCache()
	e.preview = render.NewPreview(e.previewSize)
	e.panel = uistate.NewPanel(e.maxPhotos, nil)
	e.renderer = render.NewRenderer(e.preview,
		render.WithInterval(e.interval),
		render.WithClock(e.clock),
		render.WithScaler(e.scaler),
		render.WithScheduler(e.post),
		render.WithLogger(e.logger),
		render.WithRenderHook(func([]*collage.Photo, image.Image) {
			e.metrics.Renders.Inc()
		}),
	)

	e.set.Subscribe(e.renderer.Observe)
	e.set.Subscribe(e.panel.Observe)
	e.set.Subscribe(func(photos []*collage.Photo) {
		e.metrics.Notifications.Inc()
		e.metrics.Photos.Set(float64(len(photos)))
	})

	e.ctx, e.cancelCause = context.WithCancelCause(ctx)

	e.logger.Printf("Starting editor: maxPhotos: %d, render interval: %v, preview: %v, fingerprint scope: %s",
		e.maxPhotos, e.interval, e.previewSize, e.scope)

	go func() {
		err := e.loop()
		e.logger.Printf("Editor terminated: %v", err)
	}()

	return e, nil
}

func WithMaxPhotos(n int) Option {
	return func(e *Editor) {
		e.maxPhotos = n
	}
}

// WithRenderInterval sets the preview throttle interval; 0 renders on every change.
func WithRenderInterval(d time.Duration) Option {
	return func(e *Editor) {
		e.interval = d
	}
}

func WithPreviewSize(size image.Point) Option {
	return func(e *Editor) {
		e.previewSize = size
	}
}

func WithFingerprintScope(scope FingerprintScope) Option {
	return func(e *Editor) {
		e.scope = scope
	}
}

func WithFingerprint(fn fingerprint.Func) Option {
	return func(e *Editor) {
		e.fp = fn
	}
}

func WithScaler(s draw.Scaler) Option {
	return func(e *Editor) {
		e.scaler = s
	}
}

func WithClock(c clock.WithDelayedExecution) Option {
	return func(e *Editor) {
		e.clock = c
	}
}

func WithWriter(w collage.PhotoWriter) Option {
	return func(e *Editor) {
		e.writer = w
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Editor) {
		e.notifier = n
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Editor) {
		e.metrics = m
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// Close stops the loop, cancels pending renders and detaches all subscribers.
func (e *Editor) Close() {
	e.cancelCause(ErrClosed)
	<-e.stopped
}

// Busy returns the total time the loop has spent running calls.
func (e *Editor) Busy() time.Duration {
	return time.Duration(e.busy.Load())
}

// Done is closed once the editor has stopped.
func (e *Editor) Done() <-chan struct{} {
	return e.stopped
}

// Clear empties the photo set and the fingerprint cache.
func (e *Editor) Clear(ctx context.Context) error {
	var err error
	if derr := e.do(ctx, func() { err = e.clear() }); derr != nil {
		return derr
	}
	return err
}

// State returns the derived control state.
func (e *Editor) State(ctx context.Context) (uistate.State, error) {
	var s uistate.State
	err := e.do(ctx, func() { s = e.panel.State() })
	return s, err
}

// Photos returns the current photo sequence.
func (e *Editor) Photos(ctx context.Context) ([]*collage.Photo, error) {
	var photos []*collage.Photo
	err := e.do(ctx, func() { photos = e.set.Photos() })
	return photos, err
}

// Preview returns the current rendered collage, nil before the first render.
func (e *Editor) Preview(ctx context.Context) (image.Image, error) {
	var img image.Image
	err := e.do(ctx, func() { img = e.preview.Image() })
	return img, err
}

// NavIcon returns the icon installed at the end of the last selection session.
func (e *Editor) NavIcon(ctx context.Context) (image.Image, error) {
	var img image.Image
	err := e.do(ctx, func() { img = e.navIcon })
	return img, err
}

// ResizePreview changes the render target bounds used by later renders.
func (e *Editor) ResizePreview(ctx context.Context, size image.Point) error {
	return e.do(ctx, func() { e.preview.Resize(size) })
}

// Save persists the current collage through the configured writer.
//
// A pending throttled render is flushed first so the saved image matches
// the photo set. On success the user is told the new id and the photo set
// and fingerprint cache are cleared. On failure the user sees the writer's
// error and the state is left as is so the save can be retried.
func (e *Editor) Save(ctx context.Context) (string, error) {
	return e.save(ctx, false)
}

// SaveIfEnabled is Save gated on the save control: it returns
// ErrSaveDisabled unless the set holds an even, non-zero number of photos.
func (e *Editor) SaveIfEnabled(ctx context.Context) (string, error) {
	return e.save(ctx, true)
}

func (e *Editor) save(ctx context.Context, gated bool) (string, error) {
	ctx, span := tracer.Start(ctx, "save")
	defer span.End()

	var img image.Image
	disabled := false
	if err := e.do(ctx, func() {
		if gated && !e.panel.State().SaveEnabled {
			disabled = true
			return
		}
		e.renderer.Flush()
		img = e.preview.Image()
	}); err != nil {
		return "", err
	}
	if disabled {
		span.SetStatus(codes.Error, ErrSaveDisabled.Error())
		return "", ErrSaveDisabled
	}
	if img == nil {
		span.SetStatus(codes.Error, ErrNothingToSave.Error())
		return "", ErrNothingToSave
	}
	if e.writer == nil {
		span.SetStatus(codes.Error, ErrNoWriter.Error())
		return "", ErrNoWriter
	}

	start := time.Now()
	id, err := e.writer.Save(ctx, img)
	e.metrics.RecordSave(time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		if derr := e.do(ctx, func() { e.notifier.Notify("Error", err.Error()) }); derr != nil {
			return "", derr
		}
		return "", fmt.Errorf("failed to save collage: %w", err)
	}

	span.SetAttributes(attribute.String("collage.id", id))
	if derr := e.do(ctx, func() {
		e.notifier.Notify(fmt.Sprintf("Saved with id: %s", id), "")
		if err := e.clear(); err != nil {
			e.logger.Printf("Failed to clear after save: %v", err)
		}
	}); derr != nil {
		return id, derr
	}
	return id, nil
}

func (e *Editor) clear() error {
	if err := e.set.Clear(); err != nil {
		return err
	}
	e.cache.Reset()
	return nil
}

func (e *Editor) updateNavigationIcon() {
	e.renderer.Flush()
	e.navIcon = render.Icon(e.preview.Image(), render.IconSize)
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Editor) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn()
	}

	select {
	case <-e.ctx.Done():
		return context.Cause(e.ctx)
	case <-ctx.Done():
		return ctx.Err()
	case e.calls <- call:
	}

	// The loop always runs a call it has received
	<-done
	return nil
}

// post schedules fn on the loop goroutine without waiting.
func (e *Editor) post(fn func()) {
	go func() {
		select {
		case <-e.ctx.Done():
		case e.calls <- fn:
		}
	}()
}

// loop handles every state change of the editor.
// This method blocks until the context is cancelled.
func (e *Editor) loop() error {
	_, span := tracer.Start(e.ctx, "editor_loop", trace.WithAttributes(
		attribute.Int("max_photos", e.maxPhotos),
		attribute.Float64("render_interval_sec", e.interval.Seconds()),
	))
	defer close(e.stopped)

	for {
		select {
		case <-e.ctx.Done():
			e.teardown()
			span.SetStatus(codes.Ok, "")
			span.End()
			return context.Cause(e.ctx)
		case fn := <-e.calls:
			start := time.Now()
			fn()
			e.busy.Add(int64(time.Since(start)))
		}
	}
}

func (e *Editor) teardown() {
	e.renderer.Stop()
	for s := range e.sessions {
		s.dispose()
	}
	e.set.Close()
}
