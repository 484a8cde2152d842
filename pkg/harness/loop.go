package harness

import "sync"

// mailbox queues tasks for the run loop. post never blocks, so engine event
// dispatchers can deliver callbacks while the loop waits on the browser.
type mailbox struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// post queues f. Tasks posted after close are dropped.
func (m *mailbox) post(f func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.tasks = append(m.tasks, f)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// drain takes every queued task in posting order.
func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := m.tasks
	m.tasks = nil
	return tasks
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.tasks = nil
	m.mu.Unlock()
}
