package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/seantiz/dss/internal/model"
)

// DefaultInterval is the fixed delay between consecutive status polls.
const DefaultInterval = 5000 * time.Millisecond

// StatusFetcher performs a single status poll.
type StatusFetcher interface {
	GetStatus(ctx context.Context, executionID string) (model.ExecutionStatus, error)
}

// Sink receives every status observed by a poll session, in order.
type Sink interface {
	Observe(status model.ExecutionStatus)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(status model.ExecutionStatus)

// Observe calls f(status).
func (f SinkFunc) Observe(status model.ExecutionStatus) {
	f(status)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the delay between polls. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRequestTimeout bounds each status request. Zero leaves requests
// unbounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.requestTimeout = d
		}
	}
}

// WithClock replaces the timer used between polls.
func WithClock(after func(time.Duration) <-chan time.Time) Option {
	return func(m *Monitor) {
		if after != nil {
			m.after = after
		}
	}
}

// Monitor polls execution status until completion. A single Monitor may run
// any number of sessions concurrently; sessions share no state.
type Monitor struct {
	fetcher        StatusFetcher
	logger         *slog.Logger
	interval       time.Duration
	requestTimeout time.Duration
	after          func(time.Duration) <-chan time.Time
}

// New creates a monitor that polls through fetcher.
func New(fetcher StatusFetcher, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:  fetcher,
		logger:   logger,
		interval: DefaultInterval,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the delay between polls.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run polls executionID until a COMPLETED status is observed or ctx is done.
// Each observed status is passed to sink exactly once, in order; the final
// COMPLETED status carries the result link. Poll failures are logged and
// retried after the same fixed interval. Run returns nil on completion and
// ctx.Err() on cancellation.
func (m *Monitor) Run(ctx context.Context, executionID string, sink Sink) error {
	return m.run(ctx, model.NewID(), executionID, sink)
}

func (m *Monitor) run(ctx context.Context, sessionID, executionID string, sink Sink) error {
	logger := m.logger.With("execution_id", executionID, "session_id", sessionID)
	logger.Debug("poll session started", "interval_ms", m.interval.Milliseconds())

	pollSessionsActive.Inc()
	defer pollSessionsActive.Dec()

	for {
		if err := ctx.Err(); err != nil {
			logger.Debug("poll session canceled")
			return err
		}

		status, err := m.poll(ctx, executionID)
		switch {
		case err != nil && ctx.Err() != nil:
			logger.Debug("poll session canceled")
			return ctx.Err()
		case err != nil:
			statusPollsTotal.WithLabelValues(outcomeError).Inc()
			logger.Warn("status poll failed", "error", err)
		default:
			// Observations are always keyed by the polled id.
			if status.ID != executionID {
				if status.ID != "" {
					logger.Warn("status reply for a different execution", "reported_id", status.ID)
				}
				status.ID = executionID
			}
			if status.Terminal() {
				statusPollsTotal.WithLabelValues(outcomeCompleted).Inc()
				status = status.WithLink()
				sink.Observe(status)
				logger.Info("execution completed", "link", status.Link)
				return nil
			}
			statusPollsTotal.WithLabelValues(outcomeOK).Inc()
			sink.Observe(status)
		}

		select {
		case <-ctx.Done():
			logger.Debug("poll session canceled")
			return ctx.Err()
		case <-m.after(m.interval):
		}
	}
}

// poll issues one status request, bounded by the request timeout if set.
func (m *Monitor) poll(ctx context.Context, executionID string) (model.ExecutionStatus, error) {
	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}
	return m.fetcher.GetStatus(ctx, executionID)
}

// Watch starts a session and returns a channel carrying its statuses. The
// channel is closed when the session ends. The caller must drain the channel
// or cancel ctx.
func (m *Monitor) Watch(ctx context.Context, executionID string) <-chan model.ExecutionStatus {
	ch := make(chan model.ExecutionStatus)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		defer cancel()
		_ = m.Run(ctx, executionID, SinkFunc(func(s model.ExecutionStatus) {
			select {
			case ch <- s:
			case <-ctx.Done():
			}
		}))
	}()
	return ch
}
