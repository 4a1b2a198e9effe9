package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/model"
	"github.com/seantiz/dss/internal/monitor"
	"github.com/seantiz/dss/internal/render"
)

var (
	// ErrAlreadyTracked is returned when a poll session for the execution is
	// already running.
	ErrAlreadyTracked = errors.New("execution already tracked")
	// ErrNotTracked is returned when no poll session exists for the execution.
	ErrNotTracked = errors.New("execution not tracked")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("engine shut down")
)

// Submitter starts executions on the backend.
type Submitter interface {
	SubmitExecution(ctx context.Context, req dssclient.ExecutionRequest) (string, error)
}

// Engine owns the poll sessions of all monitored executions. Every observed
// status is rendered and published to the broker.
type Engine struct {
	submitter Submitter
	monitor   *monitor.Monitor
	renderer  *render.Renderer
	broker    *StatusBroker
	logger    *slog.Logger

	// base is the parent of every session; sessions must outlive the
	// request that started them.
	base     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[string]*tracked
	closed   bool
}

// tracked is a poll session plus a signal closed once the engine has
// finished cleaning up after it.
type tracked struct {
	session *monitor.Session
	ended   chan struct{}
}

// NewEngine creates a new engine.
func NewEngine(sub Submitter, mon *monitor.Monitor, renderer *render.Renderer, logger *slog.Logger) *Engine {
	base, stop := context.WithCancel(context.Background())
	return &Engine{
		submitter: sub,
		monitor:   mon,
		renderer:  renderer,
		broker:    NewStatusBroker(),
		logger:    logger,
		base:      base,
		stop:      stop,
		sessions:  make(map[string]*tracked),
	}
}

// Broker returns the engine's status broker for SSE subscription.
func (e *Engine) Broker() *StatusBroker {
	return e.broker
}

// Renderer returns the renderer holding one block per execution.
func (e *Engine) Renderer() *render.Renderer {
	return e.renderer
}

// Submit starts an execution on the backend and begins monitoring it.
func (e *Engine) Submit(ctx context.Context, req dssclient.ExecutionRequest) (string, error) {
	id, err := e.submitter.SubmitExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("submit execution: %w", err)
	}
	e.logger.Info("execution submitted", "execution_id", id, "model_name", req.ModelName)

	if err := e.Track(id); err != nil {
		return id, err
	}
	return id, nil
}

// Track starts a poll session for an existing execution.
func (e *Engine) Track(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if _, ok := e.sessions[executionID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, executionID)
	}

	e.broker.Open(executionID)
	sink := monitor.SinkFunc(func(s model.ExecutionStatus) {
		e.renderer.Observe(s)
		e.broker.Publish(executionID, s)
	})

	s := e.monitor.Start(e.base, executionID, sink)
	t := &tracked{session: s, ended: make(chan struct{})}
	e.sessions[executionID] = t
	e.logger.Info("tracking execution", "execution_id", executionID, "session_id", s.ID())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(t.ended)
		err := s.Wait()
		e.finish(t, err)
	}()

	return nil
}

// finish removes an ended session and closes its broker topic. Both happen
// under the engine lock so a concurrent Track cannot reopen the topic in
// between.
func (e *Engine) finish(t *tracked, err error) {
	s := t.session
	e.mu.Lock()
	if cur, ok := e.sessions[s.ExecutionID()]; ok && cur == t {
		delete(e.sessions, s.ExecutionID())
		e.broker.Close(s.ExecutionID())
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Info("stopped tracking execution", "execution_id", s.ExecutionID(), "session_id", s.ID(), "reason", err.Error())
	}
}

// Cancel stops the poll session for an execution. The backend execution
// itself is unaffected.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	t, ok := e.sessions[executionID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, executionID)
	}
	t.session.Cancel()
	<-t.ended
	return nil
}

// Dismiss stops monitoring the execution if needed and drops its rendered
// block and retained status. It reports whether anything was known about
// the execution.
func (e *Engine) Dismiss(executionID string) bool {
	canceled := e.Cancel(executionID) == nil
	forgotten := e.renderer.Forget(executionID)
	e.broker.Remove(executionID)
	return canceled || forgotten
}

// Tracked reports whether a poll session is running for the execution.
func (e *Engine) Tracked(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[executionID]
	return ok
}

// Active returns the ids of all executions being polled, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every poll session has ended.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels all sessions and waits for them to stop. Further Track
// calls fail with ErrClosed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.wg.Wait()
}
