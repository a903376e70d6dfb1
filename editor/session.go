package editor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/pipeline"
	"github.com/mhbvr/collage/picker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrSessionCompleted = errors.New("selection session already completed")

// Session is one "add photos" interaction: candidates arrive through Add and
// the interaction ends with Complete.
type Session struct {
	id       string
	e        *Editor
	stream   *picker.Stream
	pipeline *pipeline.Pipeline
	span     trace.Span
	subs     []*picker.Subscription

	last pipeline.Result
}

// OpenSession starts a selection session.
//
// The session's picker stream is shared by two subscribers: the selection
// pipeline, which stops listening once the photo set is full, and a
// completion observer that refreshes the navigation icon.
func (e *Editor) OpenSession(ctx context.Context) (*Session, error) {
	s := &Session{
		id:     uuid.NewString(),
		e:      e,
		stream: picker.NewStream(),
	}
	_, s.span = tracer.Start(ctx, "selection_session", trace.WithAttributes(
		attribute.String("session.id", s.id),
	))

	var openErr error
	err := e.do(ctx, func() {
		if e.scope == ScopeSession {
			e.cache.Reset()
		}

		s.pipeline = pipeline.New(e.set, e.cache,
			pipeline.WithFingerprint(e.fp),
			pipeline.WithLogger(e.logger),
			pipeline.WithObserver(s.observe),
		)
		items, err := s.pipeline.Attach(s.stream)
		if err != nil {
			openErr = err
			return
		}
		completion, err := s.stream.Subscribe(picker.Observer{OnComplete: e.updateNavigationIcon})
		if err != nil {
			openErr = err
			return
		}
		s.subs = []*picker.Subscription{items, completion}

		e.sessions[s] = struct{}{}
		e.metrics.Sessions.Inc()
	})
	if err == nil {
		err = openErr
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.End()
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Add offers one candidate photo. Candidates arriving after the set filled
// up are not evaluated and report a capacity termination.
func (s *Session) Add(ctx context.Context, photo *collage.Photo) (pipeline.Result, error) {
	var res pipeline.Result
	var addErr error
	err := s.e.do(ctx, func() {
		if s.stream.Completed() {
			addErr = ErrSessionCompleted
			return
		}
		s.last = pipeline.Result{Verdict: pipeline.Terminated, Reason: pipeline.ReasonCapacity}
		s.stream.Next(photo)
		res = s.last
	})
	if err == nil {
		err = addErr
	}
	return res, err
}

// AddEncoded decodes data and offers it as a candidate.
func (s *Session) AddEncoded(ctx context.Context, name string, data []byte) (pipeline.Result, error) {
	photo, err := collage.DecodePhoto(name, data)
	if err != nil {
		return pipeline.Result{}, err
	}
	return s.Add(ctx, photo)
}

// Complete ends the session and returns the pipeline counters.
func (s *Session) Complete(ctx context.Context) (pipeline.Stats, error) {
	var stats pipeline.Stats
	err := s.e.do(ctx, func() {
		s.stream.Complete()
		stats = s.pipeline.Stats()
		delete(s.e.sessions, s)
	})
	if err != nil {
		return stats, err
	}

	s.span.SetAttributes(
		attribute.Int("candidates.evaluated", stats.Evaluated),
		attribute.Int("candidates.accepted", stats.Accepted),
		attribute.Bool("terminated", stats.Terminated),
	)
	s.span.End()
	return stats, nil
}

func (s *Session) observe(_ *collage.Photo, res pipeline.Result) {
	s.last = res
	s.e.metrics.Candidates.WithLabelValues(res.Verdict.String(), string(res.Reason)).Inc()
}

// dispose detaches the session without completing it. Runs on the loop.
func (s *Session) dispose() {
	for _, sub := range s.subs {
		sub.Dispose()
	}
	s.span.AddEvent("session cancelled")
	s.span.End()
}
