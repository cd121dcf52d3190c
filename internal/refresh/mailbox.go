package refresh

import "sync"

type command int

const (
	cmdRefresh command = iota
	cmdPause
	cmdResume
)

type request struct {
	cmd  command
	done chan struct{}
}

// mailbox is an unbounded queue drained by the coordinator loop. Pushing
// never blocks, so callbacks running on the loop can enqueue work.
type mailbox struct {
	mu     sync.Mutex
	items  []request
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(r request) {
	m.mu.Lock()
	m.items = append(m.items, r)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []request {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
