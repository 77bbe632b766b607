// Package events is the in-process push channel behind the SSE endpoint.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	ContentCompleted = "content.completed"
	StreamReady      = "stream.ready"
	StreamClosed     = "stream.closed"
	SeriesResolved   = "series.resolved"
)

type Event struct {
	Topic   string          `json:"topic"`
	Subject string          `json:"subject,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Bus fans events out to subscribers. Slow subscribers lose events rather
// than block publishers.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	alive bool
}

func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{}), alive: true}
}

// Publish encodes payload as JSON. A nil payload is sent as JSON null.
func (b *Bus) Publish(topic, subject string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] encode %s: %v", topic, err)
		return
	}
	evt := Event{Topic: topic, Subject: subject, Payload: raw, At: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe returns a buffered channel and its cancel func. The channel is
// closed by cancel or Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if !b.alive {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.alive = false
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
