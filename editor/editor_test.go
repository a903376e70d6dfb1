package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/internal/phototest"
	"github.com/mhbvr/collage/pipeline"
	"github.com/mhbvr/collage/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	testingclock "k8s.io/utils/clock/testing"
)

type message struct {
	title string
	text  string
}

type recorder struct {
	mu   sync.Mutex
	msgs []message
}

func (r *recorder) Notify(title, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message{title, text})
}

func (r *recorder) last() message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return message{}
	}
	return r.msgs[len(r.msgs)-1]
}

type fakeWriter struct {
	mu    sync.Mutex
	err   error
	saved []image.Image
}

func (w *fakeWriter) Save(_ context.Context, img image.Image) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.saved = append(w.saved, img)
	return "collage-1", nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestEditor(t *testing.T, opts ...Option) *Editor {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	e, err := New(ctx, append([]Option{WithRenderInterval(0), WithPreviewSize(image.Pt(60, 40))}, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func addAll(t *testing.T, s *Session, photos []*collage.Photo) []pipeline.Result {
	t.Helper()
	var out []pipeline.Result
	for _, p := range photos {
		res, err := s.Add(context.Background(), p)
		if err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		out = append(out, res)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults"},
		{name: "session scope", opts: []Option{WithFingerprintScope(ScopeSession)}},
		{name: "zero max photos", opts: []Option{WithMaxPhotos(0)}, wantErr: true},
		{name: "negative interval", opts: []Option{WithRenderInterval(-time.Second)}, wantErr: true},
		{name: "unknown scope", opts: []Option{WithFingerprintScope("forever")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(context.Background(), tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("New() expected error, got nil")
					e.Close()
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			e.Close()
		})
	}
}

func TestSessionWithDuplicateLength(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	e := newTestEditor(t, WithFingerprint(sizes.Func()))
	ctx := context.Background()

	s, err := e.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession() failed: %v", err)
	}
	results := addAll(t, s, sizes.WithSizes(100, 200, 100, 300, 400, 500))
	if results[2].Reason != pipeline.ReasonDuplicate {
		t.Errorf("third candidate reason = %q, want duplicate", results[2].Reason)
	}
	if _, err := s.Complete(ctx); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	photos, _ := e.Photos(ctx)
	want := []int{100, 200, 300, 400, 500}
	if len(photos) != len(want) {
		t.Fatalf("photo count = %d, want %d", len(photos), len(want))
	}
	for i, p := range photos {
		if int(sizes[p]) != want[i] {
			t.Errorf("photo %d length = %d, want %d", i, sizes[p], want[i])
		}
	}

	state, _ := e.State(ctx)
	if state.Count != 5 || state.SaveEnabled {
		t.Errorf("State() = %+v, want count 5 and save disabled", state)
	}
}

func TestSeventhPhotoRejected(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	e := newTestEditor(t, WithFingerprint(sizes.Func()))
	ctx := context.Background()

	s, _ := e.OpenSession(ctx)
	results := addAll(t, s, sizes.WithSizes(1, 2, 3, 4, 5, 6, 7))

	last := results[6]
	if last.Verdict != pipeline.Terminated || last.Reason != pipeline.ReasonCapacity {
		t.Errorf("7th candidate = (%v, %q), want terminated by capacity", last.Verdict, last.Reason)
	}

	state, _ := e.State(ctx)
	if state.Count != 6 || state.AddEnabled {
		t.Errorf("State() = %+v, want count 6 with add disabled", state)
	}

	stats, _ := s.Complete(ctx)
	if stats.Evaluated != 7 || stats.Accepted != 6 || !stats.Terminated {
		t.Errorf("Stats = %+v, want 7 evaluated, 6 accepted, terminated", stats)
	}

	if _, err := s.Add(ctx, phototest.Landscape(42)); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Add() after Complete error = %v, want %v", err, ErrSessionCompleted)
	}
}

func TestThrottledPreview(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Now())
	m := NewMetrics(prometheus.NewRegistry())
	sizes := phototest.Sizes{}
	e := newTestEditor(t,
		WithMaxPhotos(10),
		WithClock(fc),
		WithRenderInterval(render.DefaultInterval),
		WithFingerprint(sizes.Func()),
		WithMetrics(m),
	)
	ctx := context.Background()

	s, _ := e.OpenSession(ctx)
	photos := sizes.WithSizes(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	addAll(t, s, photos)

	if got := testutil.ToFloat64(m.Notifications); got != 10 {
		t.Errorf("notifications = %v, want 10", got)
	}
	state, _ := e.State(ctx)
	if state.Count != 10 {
		t.Errorf("State().Count = %d, want 10", state.Count)
	}
	if got := testutil.ToFloat64(m.Renders); got != 0 {
		t.Fatalf("renders before interval = %v, want 0", got)
	}

	fc.Step(render.DefaultInterval)
	waitFor(t, func() bool { return testutil.ToFloat64(m.Renders) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(m.Renders); got != 1 {
		t.Errorf("renders = %v, want 1", got)
	}

	preview, _ := e.Preview(ctx)
	want := render.Collage(photos, image.Pt(60, 40))
	if preview == nil || !bytes.Equal(preview.(*image.RGBA).Pix, want.(*image.RGBA).Pix) {
		t.Error("preview does not show the latest photo set")
	}
}

func TestClearResetsCache(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	e := newTestEditor(t, WithFingerprint(sizes.Func()))
	ctx := context.Background()
	photo := sizes.WithSizes(100)[0]

	s, _ := e.OpenSession(ctx)
	addAll(t, s, []*collage.Photo{photo})
	s.Complete(ctx)

	// Same fingerprint in a later session is still a duplicate
	s, _ = e.OpenSession(ctx)
	if res := addAll(t, s, []*collage.Photo{photo})[0]; res.Reason != pipeline.ReasonDuplicate {
		t.Errorf("second session reason = %q, want duplicate", res.Reason)
	}
	s.Complete(ctx)

	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	state, _ := e.State(ctx)
	if state.Count != 0 || state.ClearEnabled || state.Title != "Collage" {
		t.Errorf("State() after Clear = %+v", state)
	}

	s, _ = e.OpenSession(ctx)
	if res := addAll(t, s, []*collage.Photo{photo})[0]; res.Verdict != pipeline.Accepted {
		t.Errorf("after Clear verdict = %v, want accepted", res.Verdict)
	}
}

func TestSessionScopedCache(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	e := newTestEditor(t, WithFingerprint(sizes.Func()), WithFingerprintScope(ScopeSession))
	ctx := context.Background()
	photo := sizes.WithSizes(100)[0]

	for i := 0; i < 2; i++ {
		s, _ := e.OpenSession(ctx)
		if res := addAll(t, s, []*collage.Photo{photo})[0]; res.Verdict != pipeline.Accepted {
			t.Errorf("session %d verdict = %v, want accepted", i, res.Verdict)
		}
		s.Complete(ctx)
	}
}

func TestCompletionInstallsNavIcon(t *testing.T) {
	t.Parallel()

	e := newTestEditor(t)
	ctx := context.Background()

	s, _ := e.OpenSession(ctx)
	addAll(t, s, []*collage.Photo{phototest.Landscape(1)})

	if icon, _ := e.NavIcon(ctx); icon != nil {
		t.Fatal("NavIcon() before completion != nil")
	}
	if _, err := s.Complete(ctx); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	icon, _ := e.NavIcon(ctx)
	if icon == nil || icon.Bounds().Size() != render.IconSize {
		t.Errorf("NavIcon() = %v, want %v icon", icon, render.IconSize)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("success clears state", func(t *testing.T) {
		w := &fakeWriter{}
		n := &recorder{}
		m := NewMetrics(prometheus.NewRegistry())
		sizes := phototest.Sizes{}
		e := newTestEditor(t, WithWriter(w), WithNotifier(n), WithMetrics(m), WithFingerprint(sizes.Func()))

		s, _ := e.OpenSession(ctx)
		addAll(t, s, sizes.WithSizes(10, 20))
		s.Complete(ctx)

		id, err := e.Save(ctx)
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if id != "collage-1" {
			t.Errorf("Save() id = %q, want collage-1", id)
		}
		if got := n.last().title; got != "Saved with id: collage-1" {
			t.Errorf("message = %q", got)
		}
		state, _ := e.State(ctx)
		if state.Count != 0 {
			t.Errorf("Count after save = %d, want 0", state.Count)
		}
		if len(w.saved) != 1 {
			t.Errorf("writer calls = %d, want 1", len(w.saved))
		}
		if got := testutil.ToFloat64(m.Saves.WithLabelValues("success")); got != 1 {
			t.Errorf("successful saves = %v, want 1", got)
		}

		var hist dto.Metric
		if err := m.SaveLatency.Write(&hist); err != nil {
			t.Fatal(err)
		}
		if hist.GetHistogram().GetSampleCount() != 1 {
			t.Errorf("save latency samples = %d, want 1", hist.GetHistogram().GetSampleCount())
		}
	})

	t.Run("failure keeps state", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("disk full")}
		n := &recorder{}
		sizes := phototest.Sizes{}
		e := newTestEditor(t, WithWriter(w), WithNotifier(n), WithFingerprint(sizes.Func()))

		s, _ := e.OpenSession(ctx)
		addAll(t, s, sizes.WithSizes(10, 20))

		if _, err := e.Save(ctx); err == nil {
			t.Fatal("Save() expected error, got nil")
		}
		if got := n.last(); got.title != "Error" || got.text != "disk full" {
			t.Errorf("message = %+v, want Error/disk full", got)
		}
		state, _ := e.State(ctx)
		if state.Count != 2 {
			t.Errorf("Count after failed save = %d, want 2", state.Count)
		}
	})

	t.Run("nothing rendered", func(t *testing.T) {
		w := &fakeWriter{}
		e := newTestEditor(t, WithWriter(w))
		if _, err := e.Save(ctx); !errors.Is(err, ErrNothingToSave) {
			t.Errorf("Save() error = %v, want %v", err, ErrNothingToSave)
		}
		if len(w.saved) != 0 {
			t.Error("writer called without a preview")
		}
	})
}

func samePixels(a, b image.Image) bool {
	ra, ok := a.(*image.RGBA)
	if !ok {
		return false
	}
	rb, ok := b.(*image.RGBA)
	return ok && ra.Rect == rb.Rect && bytes.Equal(ra.Pix, rb.Pix)
}

func TestSaveAndIconFollowPhotoSet(t *testing.T) {
	t.Parallel()

	size := image.Pt(60, 40)
	tests := []struct {
		name     string
		interval time.Duration
	}{
		{"unthrottled", 0},
		{"throttled", render.DefaultInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// The fake clock is never stepped: throttled renders stay pending
			fc := testingclock.NewFakeClock(time.Now())
			w := &fakeWriter{}
			sizes := phototest.Sizes{}
			e := newTestEditor(t,
				WithClock(fc),
				WithRenderInterval(tt.interval),
				WithWriter(w),
				WithFingerprint(sizes.Func()),
			)
			ctx := context.Background()

			photos := sizes.WithSizes(10, 20)
			s, _ := e.OpenSession(ctx)
			addAll(t, s, photos)
			if _, err := s.Complete(ctx); err != nil {
				t.Fatalf("Complete() failed: %v", err)
			}

			want := render.Collage(photos, size)
			icon, _ := e.NavIcon(ctx)
			if icon == nil || !samePixels(icon, render.Icon(want, render.IconSize)) {
				t.Error("NavIcon() does not show the completed photo set")
			}

			if _, err := e.Save(ctx); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
			if len(w.saved) != 1 || !samePixels(w.saved[0], want) {
				t.Fatal("saved image does not show the photo set")
			}

			// Photos cleared before saving must not reach the writer
			s, _ = e.OpenSession(ctx)
			addAll(t, s, sizes.WithSizes(30, 40))
			s.Complete(ctx)
			if err := e.Clear(ctx); err != nil {
				t.Fatalf("Clear() failed: %v", err)
			}
			if _, err := e.Save(ctx); err != nil {
				t.Fatalf("Save() after Clear failed: %v", err)
			}
			if len(w.saved) != 2 || !samePixels(w.saved[1], render.Collage(nil, size)) {
				t.Error("save after Clear did not write a blank collage")
			}
		})
	}
}

func TestSaveIfEnabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := &fakeWriter{}
	sizes := phototest.Sizes{}
	e := newTestEditor(t, WithWriter(w), WithFingerprint(sizes.Func()))

	if _, err := e.SaveIfEnabled(ctx); !errors.Is(err, ErrSaveDisabled) {
		t.Errorf("SaveIfEnabled() on empty set error = %v, want %v", err, ErrSaveDisabled)
	}

	s, _ := e.OpenSession(ctx)
	addAll(t, s, sizes.WithSizes(10, 20, 30))
	if _, err := e.SaveIfEnabled(ctx); !errors.Is(err, ErrSaveDisabled) {
		t.Errorf("SaveIfEnabled() with 3 photos error = %v, want %v", err, ErrSaveDisabled)
	}
	if len(w.saved) != 0 {
		t.Fatalf("writer calls = %d, want 0", len(w.saved))
	}

	addAll(t, s, sizes.WithSizes(40))
	if _, err := e.SaveIfEnabled(ctx); err != nil {
		t.Fatalf("SaveIfEnabled() with 4 photos failed: %v", err)
	}
	if len(w.saved) != 1 {
		t.Errorf("writer calls = %d, want 1", len(w.saved))
	}
}

func TestBusy(t *testing.T) {
	t.Parallel()

	e := newTestEditor(t)
	before := e.Busy()
	if err := e.do(context.Background(), func() { time.Sleep(5 * time.Millisecond) }); err != nil {
		t.Fatalf("do() failed: %v", err)
	}
	// The loop adds the time after the call has returned
	waitFor(t, func() bool { return e.Busy()-before >= 5*time.Millisecond })
}

func TestCloseCancelsPendingRender(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Now())
	m := NewMetrics(nil)
	e, err := New(context.Background(), WithClock(fc), WithMetrics(m))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()

	s, _ := e.OpenSession(ctx)
	addAll(t, s, []*collage.Photo{phototest.Landscape(1)})
	e.Close()
	fc.Step(time.Second)

	select {
	case <-e.Done():
	default:
		t.Fatal("Done() not closed after Close")
	}
	if _, err := e.State(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("State() after Close error = %v, want %v", err, ErrClosed)
	}
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(m.Renders); got != 0 {
		t.Errorf("renders after Close = %v, want 0", got)
	}
}
