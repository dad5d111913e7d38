package notify

import (
	"context"
	"sync"
)

// MemoryDispatcher keeps every message in memory. Used by tests and the
// "memory" dispatcher mode. Set Err to simulate delivery failures.
type MemoryDispatcher struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

// NewMemoryDispatcher constructs an empty MemoryDispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

func (d *MemoryDispatcher) Send(_ context.Context, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.msgs = append(d.msgs, msg)
	return nil
}

func (d *MemoryDispatcher) Close() error { return nil }

// Messages returns a copy of everything sent so far.
func (d *MemoryDispatcher) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.msgs))
	copy(out, d.msgs)
	return out
}

// Last returns the most recent message of kind sent to addr.
func (d *MemoryDispatcher) Last(addr string, kind Kind) (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.msgs) - 1; i >= 0; i-- {
		if d.msgs[i].To == addr && d.msgs[i].Kind == kind {
			return d.msgs[i], true
		}
	}
	return Message{}, false
}

// Count returns how many messages of kind were sent to addr.
func (d *MemoryDispatcher) Count(addr string, kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.msgs {
		if m.To == addr && m.Kind == kind {
			n++
		}
	}
	return n
}
