package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lifecycle notification published by the registries.
type Event struct {
	Topic   string
	At      time.Time
	Payload any
}

// Bus provides simple in-process pub/sub. Slow subscribers lose events
// instead of blocking publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan Event
	closed  bool
	dropped int64
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(topic string, payload any) {
	ev := Event{Topic: topic, At: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddInt64(&b.dropped, 1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 { return atomic.LoadInt64(&b.dropped) }

// Close closes every subscriber channel; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
