package main

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/orca"
	"k8s.io/utils/clock"
)

// LoadSource reports the cumulative time the editor loop spent running calls.
type LoadSource interface {
	Busy() time.Duration
}

// ORCAReporter publishes editor load as ORCA server metrics. Every call runs
// on the single editor loop, so application utilization is the share of the
// report interval the loop was busy.
type ORCAReporter struct {
	serverMetrics orca.ServerMetricsRecorder
	load          LoadSource
	clock         clock.PassiveClock

	mu           sync.Mutex
	threshold    int
	requestCount int
	errorCount   int
	busy         time.Duration
	start        time.Time
}

// NewORCAReporter recomputes the metrics after every threshold requests.
func NewORCAReporter(threshold int, load LoadSource) *ORCAReporter {
	o := &ORCAReporter{
		serverMetrics: orca.NewServerMetricsRecorder(),
		load:          load,
		clock:         clock.RealClock{},
		threshold:     threshold,
	}
	o.start = o.clock.Now()
	o.busy = load.Busy()
	return o
}

func (o *ORCAReporter) ServerMetricsProvider() orca.ServerMetricsProvider {
	return o.serverMetrics
}

func (o *ORCAReporter) update() {
	now := o.clock.Now()
	interval := now.Sub(o.start)
	if interval <= 0 {
		return
	}
	busy := o.load.Busy()

	o.serverMetrics.SetApplicationUtilization(float64(busy-o.busy) / float64(interval))
	o.serverMetrics.SetQPS(float64(o.requestCount) / interval.Seconds())
	o.serverMetrics.SetEPS(float64(o.errorCount) / interval.Seconds())

	o.requestCount = 0
	o.errorCount = 0
	o.busy = busy
	o.start = now
}

// RecordRequest counts a finished call, failed when err is not nil.
func (o *ORCAReporter) RecordRequest(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requestCount++
	if err != nil {
		o.errorCount++
	}
	if o.requestCount > o.threshold {
		o.update()
	}
}

func (o *ORCAReporter) UnaryInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	o.RecordRequest(err)
	return resp, err
}

func (o *ORCAReporter) StreamInterceptor(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	err := handler(srv, ss)
	o.RecordRequest(err)
	return err
}
