package app

import (
	"context"
	"time"

	"kstat-sampler/internal/eventbus"
	"kstat-sampler/internal/health"
	"kstat-sampler/internal/history"
	"kstat-sampler/internal/logging"
	"kstat-sampler/internal/metrics"
)

// Sink receives the outcome of every cycle.
type Sink interface {
	Name() string
	Snapshot(ctx context.Context, snap metrics.Snapshot) error
	Failure(ctx context.Context, host string, at time.Time, cause error) error
}

type fileSink struct{ l *logging.Logger }

func (s fileSink) Name() string { return "ndjson" }

func (s fileSink) Snapshot(_ context.Context, snap metrics.Snapshot) error {
	return s.l.LogSnapshot(snap)
}

func (s fileSink) Failure(_ context.Context, host string, at time.Time, cause error) error {
	return s.l.LogFailure(host, at, cause)
}

type historySink struct{ repo *history.Repository }

func (s historySink) Name() string { return "history" }

func (s historySink) Snapshot(ctx context.Context, snap metrics.Snapshot) error {
	return s.repo.InsertSnapshot(ctx, snap)
}

func (s historySink) Failure(context.Context, string, time.Time, error) error { return nil }

type busSink struct{ p *eventbus.Publisher }

func (s busSink) Name() string { return "nats" }

func (s busSink) Snapshot(_ context.Context, snap metrics.Snapshot) error {
	return s.p.PublishSnapshot(snap)
}

func (s busSink) Failure(_ context.Context, host string, at time.Time, cause error) error {
	return s.p.PublishFailure(host, at, cause)
}

type healthSink struct{ srv *health.Server }

func (s healthSink) Name() string { return "health" }

func (s healthSink) Snapshot(_ context.Context, snap metrics.Snapshot) error {
	s.srv.RecordSnapshot(snap)
	return nil
}

func (s healthSink) Failure(_ context.Context, _ string, _ time.Time, cause error) error {
	s.srv.RecordFailure(cause)
	return nil
}
