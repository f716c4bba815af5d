package events

import "sync"

// Bus fans engine events out to a single consumer channel. Publishing never
// blocks the decision path: when the buffer is full the oldest event is
// dropped and the drop callback invoked.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	onDrop func(Event)
	closed bool
}

// NewBus creates a bus with the given buffer depth.
func NewBus(buffer int, onDrop func(Event)) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	if onDrop == nil {
		onDrop = func(Event) {}
	}
	return &Bus{ch: make(chan Event, buffer), onDrop: onDrop}
}

// Publish enqueues an event, evicting the oldest buffered event if needed.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- e:
			return
		default:
		}
		select {
		case dropped := <-b.ch:
			b.onDrop(dropped)
		default:
		}
	}
}

// Events returns the consumer channel.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close stops the bus; further publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
