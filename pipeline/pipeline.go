// Package pipeline decides which picked photos enter the collage.
//
// Each candidate runs through a fixed sequence of gates, stopping at the first
// that does not pass it:
//
//	capacity    -> terminates the whole selection once the set is full
//	orientation -> skips photos that are not strictly landscape
//	duplicate   -> skips photos whose fingerprint was already accepted
//	accept      -> appends the photo to the photo set
//
// Rejections are ordinary outcomes, never errors.
package pipeline

import (
	"io"
	"log"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/fingerprint"
	"github.com/mhbvr/collage/photoset"
	"github.com/mhbvr/collage/picker"
)

// Verdict is the outcome of a gate or of the whole pipeline.
type Verdict int

const (
	Continue Verdict = iota
	Accepted
	Rejected
	Terminated
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason names the gate that stopped a candidate.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCapacity    Reason = "capacity"
	ReasonOrientation Reason = "orientation"
	ReasonDuplicate   Reason = "duplicate"
	ReasonUnavailable Reason = "unavailable"
)

// Result describes what happened to one candidate.
type Result struct {
	Verdict     Verdict
	Reason      Reason
	Fingerprint fingerprint.Fingerprint
	Err         error // set only when the photo set refused an accepted candidate
}

// Stats counts candidates per outcome.
type Stats struct {
	Evaluated  int
	Accepted   int
	Terminated bool
	Rejected   map[Reason]int
}

type Option func(*Pipeline)

// Pipeline is one selection session's filter chain. It is not safe for
// concurrent use.
type Pipeline struct {
	set   *photoset.State
	cache *fingerprint.Cache
	fp    fingerprint.Func

	gates      []gate
	stats      Stats
	terminated bool

	observe func(*collage.Photo, Result)
	logger  *log.Logger
}

type gate struct {
	reason Reason
	check  func(*collage.Photo, *Result) Verdict
}

// New builds a pipeline admitting photos into set and recording fingerprints in cache.
func New(set *photoset.State, cache *fingerprint.Cache, opts ...Option) *Pipeline {
	p := &Pipeline{
		set:    set,
		cache:  cache,
		fp:     fingerprint.EncodedSize,
		logger: log.New(io.Discard, "", 0),
		stats:  Stats{Rejected: make(map[Reason]int)},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.gates = []gate{
		{ReasonCapacity, p.capacityGate},
		{ReasonOrientation, p.orientationGate},
		{ReasonDuplicate, p.duplicateGate},
	}
	return p
}

// WithFingerprint replaces the fingerprint function (encoded PNG size by default).
func WithFingerprint(fn fingerprint.Func) Option {
	return func(p *Pipeline) {
		p.fp = fn
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver installs a hook called with every evaluated candidate's result.
func WithObserver(fn func(*collage.Photo, Result)) Option {
	return func(p *Pipeline) {
		p.observe = fn
	}
}

// Process runs one candidate through the gates.
// After termination candidates are not evaluated at all.
func (p *Pipeline) Process(photo *collage.Photo) Result {
	if p.terminated {
		return Result{Verdict: Terminated, Reason: ReasonCapacity}
	}
	p.stats.Evaluated++

	res := Result{}
	for _, g := range p.gates {
		switch g.check(photo, &res) {
		case Continue:
			continue
		case Terminated:
			res.Verdict, res.Reason = Terminated, g.reason
			p.terminated = true
			p.stats.Terminated = true
			return p.finish(photo, res)
		default:
			res.Verdict, res.Reason = Rejected, g.reason
			p.stats.Rejected[g.reason]++
			return p.finish(photo, res)
		}
	}

	if err := p.set.Append(photo); err != nil {
		res.Verdict, res.Reason, res.Err = Rejected, ReasonUnavailable, err
		p.stats.Rejected[ReasonUnavailable]++
		p.logger.Printf("Photo set refused %s: %v", describe(photo), err)
		return p.finish(photo, res)
	}
	// Recorded only once the set holds the photo, so a refused append
	// leaves no fingerprint behind.
	p.cache.Record(res.Fingerprint)
	res.Verdict = Accepted
	p.stats.Accepted++
	return p.finish(photo, res)
}

// Attach subscribes the pipeline to the per-item events of a picker stream.
// The subscription is disposed as soon as the capacity gate terminates.
func (p *Pipeline) Attach(stream *picker.Stream) (*picker.Subscription, error) {
	var sub *picker.Subscription
	sub, err := stream.Subscribe(picker.Observer{
		OnNext: func(photo *collage.Photo) {
			if res := p.Process(photo); res.Verdict == Terminated {
				sub.Dispose()
			}
		},
	}, func() {
		p.logger.Printf("Completed photo selection: %d evaluated, %d accepted", p.stats.Evaluated, p.stats.Accepted)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Terminated reports whether the capacity gate has closed this pipeline.
func (p *Pipeline) Terminated() bool { return p.terminated }

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() Stats {
	out := p.stats
	out.Rejected = make(map[Reason]int, len(p.stats.Rejected))
	for k, v := range p.stats.Rejected {
		out.Rejected[k] = v
	}
	return out
}

// capacityGate reads the live set length, so the session closes itself as
// soon as the set fills up.
func (p *Pipeline) capacityGate(_ *collage.Photo, _ *Result) Verdict {
	if p.set.Len() >= p.set.Max() {
		return Terminated
	}
	return Continue
}

func (p *Pipeline) orientationGate(photo *collage.Photo, _ *Result) Verdict {
	if photo.Width() <= photo.Height() {
		return Rejected
	}
	return Continue
}

func (p *Pipeline) duplicateGate(photo *collage.Photo, res *Result) Verdict {
	fp := p.fp(photo)
	res.Fingerprint = fp
	if p.cache.Contains(fp) {
		p.logger.Printf("Duplicate photo %s (fingerprint %d)", describe(photo), fp)
		return Rejected
	}
	return Continue
}

func (p *Pipeline) finish(photo *collage.Photo, res Result) Result {
	if p.observe != nil {
		p.observe(photo, res)
	}
	return res
}

func describe(photo *collage.Photo) string {
	if photo.Name() != "" {
		return photo.Name()
	}
	return "<unnamed>"
}
