package events

import (
	"sync"
)

// defaultBufSize is used when a subscriber asks for a non-positive buffer.
const defaultBufSize = 256

// EventBus is a channel-based pub-sub event bus. Subscribers receive events
// for a single topic, or for every topic via SubscribeAll. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than stalling
// the scheduler or the workflow engine.
type EventBus struct {
	mu       sync.RWMutex
	byTopic  map[string][]chan Event
	firehose []chan Event // SubscribeAll channels, receive every topic
	closed   bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		byTopic: make(map[string][]chan Event),
	}
}

// Subscribe returns a read-only channel receiving events published to topic.
// bufSize sets the channel buffer (defaultBufSize if <= 0). Subscribing to a
// closed bus returns an already-closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}

	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.byTopic[topic] = append(b.byTopic[topic], ch)
	return ch
}

// SubscribeAll returns a single read-only channel receiving events from every
// topic. bufSize sets the channel buffer (defaultBufSize if <= 0).
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}

	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.firehose = append(b.firehose, ch)
	return ch
}

// Publish delivers event to every subscriber of topic and every SubscribeAll
// subscriber. Full channels are skipped; publishing to a closed bus is a no-op.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.byTopic[topic] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop
		}
	}

	for _, ch := range b.firehose {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop
		}
	}
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.byTopic {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.firehose {
		close(ch)
	}
}
