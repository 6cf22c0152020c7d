// Package mailbox implements the ordered frame queue shared by the dispatcher
// and every client consumer.
package mailbox

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// ErrClosed is returned once the mailbox has been closed.
var ErrClosed = errors.New("mailbox closed")

// Stats is a point-in-time view of the queue.
type Stats struct {
	Depth        int `json:"mailbox_depth"`
	ServerFrames int `json:"server_frames"`
	ClientFrames int `json:"client_frames"`
}

// Mailbox is a FIFO of envelopes. Every pop removes the oldest envelope that
// matches a filter in a single critical section, so two consumers never see
// the same frame.
type Mailbox struct {
	mu     sync.Mutex
	queue  deque.Deque[proto.Envelope]
	notify chan struct{}
	closed bool
}

// New creates an empty mailbox.
func New() *Mailbox {
	return &Mailbox{notify: make(chan struct{})}
}

// Enqueue appends env to the tail and wakes waiting consumers.
func (m *Mailbox) Enqueue(ctx context.Context, env proto.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.queue.PushBack(env)
	m.wakeLocked()
	return nil
}

// TryPop removes the oldest envelope matching f without waiting.
func (m *Mailbox) TryPop(f Filter) (proto.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked(f)
}

// Pop removes the oldest envelope matching f, waiting for one to arrive.
// Frames still queued after Close can be popped; ErrClosed is returned only
// when nothing matches.
func (m *Mailbox) Pop(ctx context.Context, f Filter) (proto.Envelope, error) {
	for {
		m.mu.Lock()
		if env, ok := m.popLocked(f); ok {
			m.mu.Unlock()
			return env, nil
		}
		if m.closed {
			m.mu.Unlock()
			return proto.Envelope{}, ErrClosed
		}
		wait := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return proto.Envelope{}, ctx.Err()
		case <-wait:
		}
	}
}

// Drain removes and returns the whole content in order.
func (m *Mailbox) Drain() []proto.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]proto.Envelope, m.queue.Len())
	for i := range out {
		out[i] = m.queue.At(i)
	}
	m.queue.Clear()
	return out
}

// Restore puts a drained sequence back at the head, ahead of anything
// enqueued since the drain.
func (m *Mailbox) Restore(seq []proto.Envelope) {
	if len(seq) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(seq) - 1; i >= 0; i-- {
		m.queue.PushFront(seq[i])
	}
	m.wakeLocked()
}

// Len returns the number of queued envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Stats counts queued envelopes per target.
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Depth: m.queue.Len()}
	for i := 0; i < m.queue.Len(); i++ {
		if m.queue.At(i).Target == proto.TargetServer {
			st.ServerFrames++
		} else {
			st.ClientFrames++
		}
	}
	return st
}

// Close rejects further enqueues and releases every waiting consumer.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.wakeLocked()
}

func (m *Mailbox) popLocked(f Filter) (proto.Envelope, bool) {
	idx := m.queue.Index(f.Match)
	if idx < 0 {
		return proto.Envelope{}, false
	}
	return m.queue.Remove(idx), true
}

// wakeLocked releases everyone blocked in Pop; they re-scan the queue.
func (m *Mailbox) wakeLocked() {
	close(m.notify)
	m.notify = make(chan struct{})
}
