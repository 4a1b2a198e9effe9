package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/model"
	"github.com/seantiz/dss/internal/monitor"
)

// step is one scripted response of a status poll.
type step struct {
	status string
	err    error
	block  bool // wait for ctx cancellation before answering
}

// scriptedFetcher answers status polls from a per-execution script and
// records request overlap. The last step repeats once a script is exhausted.
type scriptedFetcher struct {
	mu          sync.Mutex
	scripts     map[string][]step
	calls       map[string]int
	inflight    map[string]int
	maxInflight int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		scripts:  make(map[string][]step),
		calls:    make(map[string]int),
		inflight: make(map[string]int),
	}
}

func (f *scriptedFetcher) script(id string, steps ...step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = steps
}

func (f *scriptedFetcher) GetStatus(ctx context.Context, id string) (model.ExecutionStatus, error) {
	f.mu.Lock()
	steps := f.scripts[id]
	i := f.calls[id]
	f.calls[id]++
	f.inflight[id]++
	if f.inflight[id] > f.maxInflight {
		f.maxInflight = f.inflight[id]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight[id]--
		f.mu.Unlock()
	}()

	if len(steps) == 0 {
		return model.ExecutionStatus{}, fmt.Errorf("no script for %s", id)
	}
	if i >= len(steps) {
		i = len(steps) - 1
	}
	s := steps[i]
	if s.block {
		<-ctx.Done()
		return model.ExecutionStatus{}, ctx.Err()
	}
	if s.err != nil {
		return model.ExecutionStatus{}, s.err
	}
	return model.ExecutionStatus{ID: id, Status: s.status}, nil
}

func (f *scriptedFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// fakeClock fires immediately and records every requested delay.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// recorder is a Sink collecting observed statuses.
type recorder struct {
	mu     sync.Mutex
	events []model.ExecutionStatus
}

func (r *recorder) Observe(s model.ExecutionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) snapshot() []model.ExecutionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ExecutionStatus(nil), r.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func running() step   { return step{status: model.StatusRunning} }
func completed() step { return step{status: model.StatusCompleted} }

func TestRunEmitsEachStatusAndStopsOnCompleted(t *testing.T) {
	f := newScriptedFetcher()
	f.script("42", running(), running(), completed())
	clock := &fakeClock{}
	m := monitor.New(f, discardLogger(), monitor.WithClock(clock.After))

	rec := &recorder{}
	if err := m.Run(context.Background(), "42", rec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.snapshot()
	want := []string{model.StatusRunning, model.StatusRunning, model.StatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Status != w {
			t.Errorf("event[%d].Status = %q, want %q", i, got[i].Status, w)
		}
		if got[i].ID != "42" {
			t.Errorf("event[%d].ID = %q, want 42", i, got[i].ID)
		}
	}
	for i := 0; i < 2; i++ {
		if got[i].Link != "" {
			t.Errorf("event[%d].Link = %q, want empty", i, got[i].Link)
		}
	}
	if got[2].Link != "best_run/42" {
		t.Errorf("final Link = %q, want %q", got[2].Link, "best_run/42")
	}
	if n := f.callCount("42"); n != 3 {
		t.Errorf("status requests = %d, want 3", n)
	}
}

func TestRunRetriesAfterError(t *testing.T) {
	f := newScriptedFetcher()
	f.script("7",
		running(),
		step{err: fmt.Errorf("%w: connection refused", dssclient.ErrNetwork)},
		step{err: fmt.Errorf("%w: unexpected EOF", dssclient.ErrParse)},
		completed(),
	)
	clock := &fakeClock{}
	m := monitor.New(f, discardLogger(), monitor.WithClock(clock.After))

	rec := &recorder{}
	if err := m.Run(context.Background(), "7", rec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (errors emit nothing)", len(got))
	}
	if got[0].Status != model.StatusRunning || got[1].Status != model.StatusCompleted {
		t.Errorf("events = %q, %q", got[0].Status, got[1].Status)
	}
	if got[1].Link != "best_run/7" {
		t.Errorf("final Link = %q", got[1].Link)
	}
	if n := f.callCount("7"); n != 4 {
		t.Errorf("status requests = %d, want 4", n)
	}
}

func TestRunWaitsFixedIntervalBetweenPolls(t *testing.T) {
	f := newScriptedFetcher()
	f.script("x", running(), step{err: errors.New("boom")}, running(), running(), completed())
	clock := &fakeClock{}
	interval := 1234 * time.Millisecond
	m := monitor.New(f, discardLogger(), monitor.WithClock(clock.After), monitor.WithInterval(interval))

	if err := m.Run(context.Background(), "x", &recorder{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waits := clock.recorded()
	if len(waits) != 4 {
		t.Fatalf("recorded %d waits, want 4 (no wait after completion)", len(waits))
	}
	for i, w := range waits {
		if w != interval {
			t.Errorf("wait[%d] = %v, want %v", i, w, interval)
		}
	}
}

func TestDefaultInterval(t *testing.T) {
	m := monitor.New(newScriptedFetcher(), discardLogger())
	if m.Interval() != 5*time.Second {
		t.Errorf("Interval() = %v, want 5s", m.Interval())
	}

	m = monitor.New(newScriptedFetcher(), discardLogger(), monitor.WithInterval(-time.Second))
	if m.Interval() != monitor.DefaultInterval {
		t.Errorf("negative interval accepted: %v", m.Interval())
	}
}

func TestRunPassesThroughUnknownStatus(t *testing.T) {
	f := newScriptedFetcher()
	f.script("q", step{status: "QUEUED"}, step{status: model.StatusNotFound}, completed())
	m := monitor.New(f, discardLogger(), monitor.WithClock((&fakeClock{}).After))

	rec := &recorder{}
	if err := m.Run(context.Background(), "q", rec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 3 || got[0].Status != "QUEUED" || got[1].Status != model.StatusNotFound {
		t.Errorf("events = %+v", got)
	}
}

type idlessFetcher struct{}

func (idlessFetcher) GetStatus(context.Context, string) (model.ExecutionStatus, error) {
	return model.ExecutionStatus{Status: model.StatusCompleted}, nil
}

func TestRunFillsMissingID(t *testing.T) {
	m := monitor.New(idlessFetcher{}, discardLogger())

	rec := &recorder{}
	if err := m.Run(context.Background(), "abc", rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0].ID != "abc" || got[0].Link != "best_run/abc" {
		t.Errorf("events = %+v", got)
	}
}

type foreignIDFetcher struct {
	status string
}

func (f foreignIDFetcher) GetStatus(context.Context, string) (model.ExecutionStatus, error) {
	return model.ExecutionStatus{ID: "other", Status: f.status}, nil
}

func TestRunKeysEventsByPolledID(t *testing.T) {
	for _, status := range []string{model.StatusRunning, model.StatusCompleted} {
		t.Run(status, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			m := monitor.New(foreignIDFetcher{status: status}, discardLogger(), monitor.WithClock((&fakeClock{}).After))
			rec := &recorder{}
			sink := monitor.SinkFunc(func(s model.ExecutionStatus) {
				rec.Observe(s)
				if len(rec.snapshot()) == 2 {
					cancel()
				}
			})
			m.Run(ctx, "A", sink)

			got := rec.snapshot()
			if len(got) == 0 {
				t.Fatal("no events")
			}
			for _, s := range got {
				if s.ID != "A" {
					t.Errorf("event ID = %q, want A", s.ID)
				}
			}
			if status == model.StatusCompleted && got[0].Link != "best_run/A" {
				t.Errorf("Link = %q, want best_run/A", got[0].Link)
			}
		})
	}
}

func TestConcurrentSessionsKeepEventsApart(t *testing.T) {
	f := newScriptedFetcher()
	f.script("a", running(), running(), running(), completed())
	f.script("b", running(), step{err: errors.New("reset")}, completed())

	m := monitor.New(f, discardLogger(), monitor.WithInterval(time.Millisecond))

	recA, recB := &recorder{}, &recorder{}
	sa := m.Start(context.Background(), "a", recA)
	sb := m.Start(context.Background(), "b", recB)

	for _, s := range []*monitor.Session{sa, sb} {
		select {
		case <-s.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("session %s did not finish", s.ExecutionID())
		}
		if err := s.Err(); err != nil {
			t.Errorf("session %s Err = %v", s.ExecutionID(), err)
		}
	}

	for id, rec := range map[string]*recorder{"a": recA, "b": recB} {
		events := rec.snapshot()
		if len(events) == 0 {
			t.Fatalf("no events for %s", id)
		}
		for i, e := range events {
			if e.ID != id {
				t.Errorf("%s event[%d] attributed to %q", id, i, e.ID)
			}
		}
		if last := events[len(events)-1]; last.Link != model.ResultLink(id) {
			t.Errorf("%s final link = %q", id, last.Link)
		}
	}
	if len(recA.snapshot()) != 4 || len(recB.snapshot()) != 2 {
		t.Errorf("event counts a=%d b=%d, want 4 and 2", len(recA.snapshot()), len(recB.snapshot()))
	}

	f.mu.Lock()
	maxInflight := f.maxInflight
	f.mu.Unlock()
	if maxInflight != 1 {
		t.Errorf("max concurrent requests per execution = %d, want 1", maxInflight)
	}
}

func TestSessionCancelStopsPolling(t *testing.T) {
	f := newScriptedFetcher()
	f.script("slow", running())
	m := monitor.New(f, discardLogger(), monitor.WithInterval(time.Hour))

	rec := &recorder{}
	s := m.Start(context.Background(), "slow", rec)
	if s.ID() == "" {
		t.Error("session ID is empty")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Cancel()

	if err := s.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if n := f.callCount("slow"); n != 1 {
		t.Errorf("status requests = %d, want 1", n)
	}
}

func TestSessionCancelAbandonsInflightRequest(t *testing.T) {
	f := newScriptedFetcher()
	f.script("hang", step{block: true})
	m := monitor.New(f, discardLogger())

	rec := &recorder{}
	s := m.Start(context.Background(), "hang", rec)

	deadline := time.Now().Add(5 * time.Second)
	for f.callCount("hang") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after Cancel")
	}
	if len(rec.snapshot()) != 0 {
		t.Errorf("got %d events from a canceled request", len(rec.snapshot()))
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	f := newScriptedFetcher()
	f.script("x", running())
	m := monitor.New(f, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Run(ctx, "x", &recorder{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if n := f.callCount("x"); n != 0 {
		t.Errorf("status requests = %d, want 0", n)
	}
}

func TestRequestTimeoutRetries(t *testing.T) {
	f := newScriptedFetcher()
	f.script("t", step{block: true}, completed())
	m := monitor.New(f, discardLogger(),
		monitor.WithRequestTimeout(20*time.Millisecond),
		monitor.WithClock((&fakeClock{}).After),
	)

	rec := &recorder{}
	if err := m.Run(context.Background(), "t", rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0].Status != model.StatusCompleted {
		t.Errorf("events = %+v, want only COMPLETED", got)
	}
}

func TestWatchChannel(t *testing.T) {
	f := newScriptedFetcher()
	f.script("w", running(), completed())
	m := monitor.New(f, discardLogger(), monitor.WithClock((&fakeClock{}).After))

	var got []model.ExecutionStatus
	for s := range m.Watch(context.Background(), "w") {
		got = append(got, s)
	}

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[1].Link != "best_run/w" {
		t.Errorf("final Link = %q", got[1].Link)
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	f := newScriptedFetcher()
	f.script("w", running())
	m := monitor.New(f, discardLogger(), monitor.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Watch(ctx, "w")
	if s := <-ch; s.Status != model.StatusRunning {
		t.Errorf("first event = %q", s.Status)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
