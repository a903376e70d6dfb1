package pipeline

import (
	"testing"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/fingerprint"
	"github.com/mhbvr/collage/internal/phototest"
	"github.com/mhbvr/collage/photoset"
	"github.com/mhbvr/collage/picker"
)

func newTestPipeline(sizes phototest.Sizes) (*Pipeline, *photoset.State, *fingerprint.Cache) {
	set := photoset.New(photoset.MaxPhotos)
	cache := fingerprint.NewCache()
	return New(set, cache, WithFingerprint(sizes.Func())), set, cache
}

func fingerprints(sizes phototest.Sizes, photos []*collage.Photo) []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(photos))
	for _, p := range photos {
		out = append(out, sizes[p])
	}
	return out
}

func TestDuplicateByEncodedLength(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	p, set, _ := newTestPipeline(sizes)

	for _, photo := range sizes.WithSizes(100, 200, 100, 300, 400, 500) {
		p.Process(photo)
	}

	got := fingerprints(sizes, set.Photos())
	want := []fingerprint.Fingerprint{100, 200, 300, 400, 500}
	if len(got) != len(want) {
		t.Fatalf("accepted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("accepted[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	stats := p.Stats()
	if stats.Accepted != 5 || stats.Rejected[ReasonDuplicate] != 1 || stats.Evaluated != 6 {
		t.Errorf("Stats() = %+v, want 5 accepted, 1 duplicate, 6 evaluated", stats)
	}
}

func TestGateOrder(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	p, set, cache := newTestPipeline(sizes)

	square := phototest.Sized(3, 3, 1)
	portrait := phototest.Portrait(2)
	landscape := phototest.Landscape(3)
	sizes[square], sizes[portrait], sizes[landscape] = 10, 20, 30

	tests := []struct {
		name   string
		photo  *collage.Photo
		want   Verdict
		reason Reason
	}{
		{"square is not landscape", square, Rejected, ReasonOrientation},
		{"portrait is not landscape", portrait, Rejected, ReasonOrientation},
		{"landscape accepted", landscape, Accepted, ReasonNone},
		{"same landscape again", landscape, Rejected, ReasonDuplicate},
	}
	for _, tt := range tests {
		res := p.Process(tt.photo)
		if res.Verdict != tt.want || res.Reason != tt.reason {
			t.Errorf("%s: Process() = (%v, %q), want (%v, %q)", tt.name, res.Verdict, res.Reason, tt.want, tt.reason)
		}
	}

	// Orientation rejects never reach the fingerprint cache
	if cache.Len() != 1 || !cache.Contains(30) {
		t.Errorf("cache Len() = %d, want only the landscape fingerprint", cache.Len())
	}
	if set.Len() != 1 {
		t.Errorf("set Len() = %d, want 1", set.Len())
	}
}

func TestPortraitNeverAppended(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	p, set, _ := newTestPipeline(sizes)
	for i := 0; i < 10; i++ {
		photo := phototest.Sized(5, 5+i, i)
		sizes[photo] = fingerprint.Fingerprint(1000 + i)
		if res := p.Process(photo); res.Verdict != Rejected {
			t.Errorf("Process(%dx%d) = %v, want rejected", photo.Width(), photo.Height(), res.Verdict)
		}
	}
	if set.Len() != 0 {
		t.Errorf("set Len() = %d, want 0", set.Len())
	}
}

func TestCapacityTerminatesSession(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	p, set, _ := newTestPipeline(sizes)
	stream := picker.NewStream()

	disposed := false
	sub, err := p.Attach(stream)
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	photos := sizes.WithSizes(1, 2, 3, 4, 5, 6, 7, 8)
	for _, photo := range photos {
		stream.Next(photo)
	}
	disposed = sub.Disposed()

	if set.Len() != photoset.MaxPhotos {
		t.Errorf("set Len() = %d, want %d", set.Len(), photoset.MaxPhotos)
	}
	if !p.Terminated() || !disposed {
		t.Errorf("Terminated() = %v, disposed = %v, want both true", p.Terminated(), disposed)
	}

	// The 7th candidate hit the capacity gate; the 8th was never evaluated
	stats := p.Stats()
	if stats.Evaluated != 7 {
		t.Errorf("Evaluated = %d, want 7", stats.Evaluated)
	}
	if res := p.Process(phototest.Landscape(99)); res.Verdict != Terminated {
		t.Errorf("Process() after termination = %v, want terminated", res.Verdict)
	}
	if p.Stats().Evaluated != 7 {
		t.Errorf("Evaluated after termination = %d, want 7", p.Stats().Evaluated)
	}
}

func TestCapacityReadsLiveLength(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	set := photoset.New(photoset.MaxPhotos)
	for _, photo := range sizes.WithSizes(1, 2, 3, 4, 5) {
		if err := set.Append(photo); err != nil {
			t.Fatal(err)
		}
	}

	p := New(set, fingerprint.NewCache(), WithFingerprint(sizes.Func()))
	extra := sizes.WithSizes(50, 60)
	if res := p.Process(extra[0]); res.Verdict != Accepted {
		t.Fatalf("Process() = %v, want accepted", res.Verdict)
	}
	if res := p.Process(extra[1]); res.Verdict != Terminated {
		t.Errorf("Process() on full set = %v, want terminated", res.Verdict)
	}
}

func TestClearAllowsFingerprintAgain(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	p, set, cache := newTestPipeline(sizes)
	photos := sizes.WithSizes(100)

	if res := p.Process(photos[0]); res.Verdict != Accepted {
		t.Fatalf("Process() = %v, want accepted", res.Verdict)
	}
	if res := p.Process(photos[0]); res.Reason != ReasonDuplicate {
		t.Fatalf("Process() reason = %q, want duplicate", res.Reason)
	}

	if err := set.Clear(); err != nil {
		t.Fatal(err)
	}
	cache.Reset()

	if res := p.Process(photos[0]); res.Verdict != Accepted {
		t.Errorf("Process() after clear = %v, want accepted", res.Verdict)
	}
}

func TestRefusedAppendLeavesNoFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, p *Pipeline, set *photoset.State, inner *collage.Photo)
	}{
		{
			name: "closed set",
			setup: func(_ *testing.T, _ *Pipeline, set *photoset.State, _ *collage.Photo) {
				set.Close()
			},
		},
		{
			name: "write from a notification",
			setup: func(t *testing.T, p *Pipeline, set *photoset.State, inner *collage.Photo) {
				set.Subscribe(func([]*collage.Photo) {
					if res := p.Process(inner); res.Reason != ReasonUnavailable {
						t.Errorf("nested Process() = (%v, %q), want unavailable", res.Verdict, res.Reason)
					}
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sizes := phototest.Sizes{}
			p, set, cache := newTestPipeline(sizes)
			photos := sizes.WithSizes(100, 200)
			tt.setup(t, p, set, photos[1])

			p.Process(photos[0])

			if cache.Contains(200) {
				t.Error("cache holds the fingerprint of a refused photo")
			}
			for _, photo := range set.Photos() {
				if !cache.Contains(sizes[photo]) {
					t.Errorf("cache misses accepted fingerprint %d", sizes[photo])
				}
			}
			if set.Len() == 0 && cache.Len() != 0 {
				t.Errorf("cache.Len() = %d with an empty set, want 0", cache.Len())
			}
		})
	}
}

func TestObserverSeesEveryResult(t *testing.T) {
	t.Parallel()

	sizes := phototest.Sizes{}
	var verdicts []Verdict
	set := photoset.New(photoset.MaxPhotos)
	p := New(set, fingerprint.NewCache(),
		WithFingerprint(sizes.Func()),
		WithObserver(func(_ *collage.Photo, r Result) { verdicts = append(verdicts, r.Verdict) }),
	)

	for _, photo := range sizes.WithSizes(1, 1) {
		p.Process(photo)
	}
	p.Process(phototest.Portrait(3))

	want := []Verdict{Accepted, Rejected, Rejected}
	if len(verdicts) != len(want) {
		t.Fatalf("observed %v, want %v", verdicts, want)
	}
	for i := range want {
		if verdicts[i] != want[i] {
			t.Errorf("verdict %d = %v, want %v", i, verdicts[i], want[i])
		}
	}
}
