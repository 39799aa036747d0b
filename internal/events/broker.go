// Package events fans engine lifecycle events out to in-process subscribers
// (ops websocket stream) or a Redis channel for external consumers.
package events

import (
	"sync"
	"time"
)

// Topics published by the engine.
const (
	TopicOrderRouted   = "order.routed"
	TopicOrderFailed   = "order.failed"
	TopicTrackingSync  = "tracking.synced"
	TopicLowStock      = "inventory.low_stock"
)

type Event struct {
	Type string         `json:"type"`
	TS   time.Time      `json:"ts"`
	Data map[string]any `json:"data,omitempty"`
}

type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Memory is the in-process broker. Slow subscribers drop events rather than
// block the publisher.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	evt.Type = topic
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
