package engine

import (
	"sync"

	"github.com/seantiz/dss/internal/model"
)

// subscriberBufferSize is the channel buffer for each status subscriber.
// Statuses are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// StatusBroker fans status observations out to per-execution subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that subscribers arriving after a
// session ended receive a closed channel instead of blocking forever. Open
// resets a marker when the execution is tracked again.
type StatusBroker struct {
	mu     sync.Mutex
	topics map[string]*statusTopic
}

type statusTopic struct {
	subs   map[int]chan model.ExecutionStatus
	nextID int
	closed bool
	last   *model.ExecutionStatus
}

// NewStatusBroker creates a new status broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{
		topics: make(map[string]*statusTopic),
	}
}

// Open prepares a topic for a new poll session, discarding a closed marker
// left by a previous session for the same execution.
func (b *StatusBroker) Open(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok || t.closed {
		b.topics[executionID] = &statusTopic{subs: make(map[int]chan model.ExecutionStatus)}
	}
}

// Subscribe returns a channel that receives statuses for the given execution
// and an unsubscribe function. The latest status, if any, is delivered first
// so a late subscriber starts from the current state. If the session has
// already ended, the channel holds that last status and is closed.
func (b *StatusBroker) Subscribe(executionID string) (<-chan model.ExecutionStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan model.ExecutionStatus)}
		b.topics[executionID] = t
	}

	ch := make(chan model.ExecutionStatus, subscriberBufferSize)
	if t.last != nil {
		ch <- *t.last
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a status to all subscribers of the given execution.
// Statuses are dropped for subscribers whose buffers are full.
func (b *StatusBroker) Publish(executionID string, status model.ExecutionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok || t.closed {
		return
	}
	t.last = &status

	for _, ch := range t.subs {
		select {
		case ch <- status:
		default:
			// Drop for slow subscribers to avoid blocking the poll loop.
		}
	}
}

// Close signals that no more statuses will be published for the execution.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *StatusBroker) Close(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		b.topics[executionID] = &statusTopic{subs: make(map[int]chan model.ExecutionStatus), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Remove discards a closed topic and its retained last status. Open topics
// are left alone.
func (b *StatusBroker) Remove(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[executionID]; ok && t.closed {
		delete(b.topics, executionID)
	}
}
