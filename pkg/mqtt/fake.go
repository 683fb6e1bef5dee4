package mqtt

import (
	"sync"

	"github.com/djbios/catscale/pkg/litterbox"
)

// FakePublisher records published events in memory for tests.
type FakePublisher struct {
	mu     sync.Mutex
	events []litterbox.Event
	closed bool
}

// NewFakePublisher creates an in-memory publisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event.
func (p *FakePublisher) Publish(event litterbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return nil
}

// Close marks the publisher as closed.
func (p *FakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// Events returns a copy of all recorded events.
func (p *FakePublisher) Events() []litterbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]litterbox.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Closed reports whether Close has been called.
func (p *FakePublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}
