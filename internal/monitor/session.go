package monitor

import (
	"context"
	"sync"

	"github.com/seantiz/dss/internal/model"
)

// Session is a running poll loop for one execution.
type Session struct {
	id          string
	executionID string
	cancel      context.CancelFunc
	done        chan struct{}

	mu  sync.Mutex
	err error
}

// Start launches a poll session in a goroutine. The session stops when the
// execution completes, ctx is done, or Cancel is called.
func (m *Monitor) Start(ctx context.Context, executionID string, sink Sink) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:          model.NewID(),
		executionID: executionID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer cancel()
		err := m.run(ctx, s.id, executionID, sink)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()

	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// ExecutionID returns the execution being polled.
func (s *Session) ExecutionID() string {
	return s.executionID
}

// Cancel stops scheduling further polls. An in-flight request is abandoned.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session stopped: nil after completion, the context
// error after cancellation. It returns nil while the session is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session stops and returns Err.
func (s *Session) Wait() error {
	<-s.done
	return s.Err()
}
