// Package relay fans job progress events out to Server-Sent Events clients.
package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
)

const subscriberBufSize = 256

// Event is one progress message of a job.
type Event struct {
	Job     string
	Kind    string
	Payload string
}

// Broker delivers events to every subscriber without blocking the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a client. The returned channel is buffered and closed
// by Unsubscribe.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends evt to all subscribers. A subscriber whose buffer is full
// misses the event.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishJSON encodes v as the payload of a job event.
func (b *Broker) PublishJSON(job, kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay event encode failed", "job_id", job, "kind", kind, "error", err)
		return
	}
	b.Publish(Event{Job: job, Kind: kind, Payload: string(data)})
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow clients.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }
