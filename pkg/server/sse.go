package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Broker fans out model updates to Server-Sent Events subscribers, one
// topic per log.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// Event is one SSE message.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	ID    string      `json:"id,omitempty"`
}

// NewBroker creates a new broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe creates a subscription for a topic.
func (b *Broker) Subscribe(topic string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 10)
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan Event]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[topic]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// Publish sends an event to all subscribers of a topic. Slow subscribers
// miss events rather than block the publisher.
func (b *Broker) Publish(topic string, event Event) {
	if event.ID == "" {
		event.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishModel sends a fresh discovery result.
func (b *Broker) PublishModel(topic string, resp *DiscoverResponse) {
	b.Publish(topic, Event{Event: "model", Data: resp})
}

// PublishError sends a failed rediscovery.
func (b *Broker) PublishError(topic string, err error) {
	b.Publish(topic, Event{Event: "error", Data: map[string]string{"error": err.Error()}})
}

// HasSubscribers checks if a topic has any subscribers.
func (b *Broker) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic]) > 0
}

// Handler streams a topic named by the log_id query parameter. Unlike job
// progress, a model stream stays open until the client leaves.
func (b *Broker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("log_id")
		if topic == "" {
			jsonError(w, "log_id required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			jsonError(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := b.Subscribe(topic)
		defer b.Unsubscribe(topic, ch)

		writeEvent(w, Event{Event: "ready", Data: map[string]string{"log_id": topic}})
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				writeEvent(w, event)
				flusher.Flush()
			}
		}
	}
}

// writeEvent writes an event in SSE format.
func writeEvent(w http.ResponseWriter, event Event) {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	fmt.Fprintf(w, "event: %s\n", event.Event)

	data, _ := json.Marshal(event.Data)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
