// Package sse fans session events out to Server-Sent Events clients.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/metrics"
)

const (
	// DefaultKeepAlive is the interval between comment frames on idle streams.
	DefaultKeepAlive = 30 * time.Second
	// DefaultHistory is how many recent events are kept for reconnecting clients.
	DefaultHistory = 128

	clientBuffer = 64
)

// Event is one published event. ID is assigned on publish when empty.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscription is one connected client. Missed holds the events published
// after the Last-Event-ID the client reconnected with.
type Subscription struct {
	C      <-chan Event
	Missed []Event

	ch chan Event
}

// Broker keeps the subscriber set and a short event history. Slow clients
// drop events rather than stall publishers.
type Broker struct {
	keepAlive time.Duration
	history   int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	recent []Event
	closed bool
}

// NewBroker creates a broker. keepAlive <= 0 uses DefaultKeepAlive.
func NewBroker(keepAlive time.Duration) *Broker {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Broker{
		keepAlive: keepAlive,
		history:   DefaultHistory,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a client. A non-empty lastEventID that is still in the
// history fills Missed with everything published after it.
func (b *Broker) Subscribe(lastEventID string) *Subscription {
	ch := make(chan Event, clientBuffer)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return sub
	}
	if lastEventID != "" {
		for i, e := range b.recent {
			if e.ID == lastEventID {
				sub.Missed = append([]Event(nil), b.recent[i+1:]...)
				break
			}
		}
	}
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetSSEClients(n)
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetSSEClients(n)
}

// Publish records event in the history and hands it to every client.
func (b *Broker) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.recent = append(b.recent, event)
	if over := len(b.recent) - b.history; over > 0 {
		b.recent = append(b.recent[:0:0], b.recent[over:]...)
	}
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Notify publishes an event of the given type. It satisfies editor.Notifier.
func (b *Broker) Notify(eventType string, data any) {
	b.Publish(Event{Type: eventType, Data: data})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every client. Later publishes are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	clear(b.subs)
	metrics.SetSSEClients(0)
}

// WriteFrame writes event in text/event-stream format.
func WriteFrame(w io.Writer, event Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload)
	return err
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := b.Subscribe(r.Header.Get("Last-Event-ID"))
	defer b.Unsubscribe(sub)

	for _, e := range sub.Missed {
		if err := WriteFrame(w, e); err != nil {
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := WriteFrame(w, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
