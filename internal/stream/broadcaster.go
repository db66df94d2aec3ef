package stream

import (
	"sync"

	"github.com/ryaneggz/agent-q/internal/log"
)

// Broadcaster owns the per-message streams. Streams are created at submit
// time and live until the message is removed, so late subscribers can replay
// a finished stream for as long as its message exists.
type Broadcaster struct {
	mu      sync.RWMutex
	streams map[string]*stream
	bufSize int
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold
// bufSize events. bufSize < 1 selects DefaultSubscriberBuffer.
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize < 1 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		streams: make(map[string]*stream),
		bufSize: bufSize,
	}
}

// Create registers a stream for the message id. Idempotent.
func (b *Broadcaster) Create(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.streams[id]; !ok {
		b.streams[id] = newStream(id, b.bufSize)
	}
}

// Publish appends an event to the message's stream and fans it out.
// Publishing to an unknown id is a no-op with a warning; it indicates a
// dropped stream racing a worker.
func (b *Broadcaster) Publish(id string, ev Event) {
	b.mu.RLock()
	st, ok := b.streams[id]
	b.mu.RUnlock()

	if !ok {
		log.Warn(log.CatStream, "publish to unknown stream", "id", id, "kind", ev.Kind)
		return
	}
	st.publish(ev)
}

// Subscribe returns the replay snapshot and a live channel for the message's
// stream. The channel is closed when the stream terminates, the subscriber
// overruns its buffer, or Unsubscribe is called. ok=false when the id is
// unknown.
func (b *Broadcaster) Subscribe(id string) ([]Event, <-chan Event, bool) {
	b.mu.RLock()
	st, ok := b.streams[id]
	b.mu.RUnlock()

	if !ok {
		return nil, nil, false
	}
	snapshot, ch := st.subscribe()
	return snapshot, ch, true
}

// Unsubscribe detaches a live channel obtained from Subscribe.
func (b *Broadcaster) Unsubscribe(id string, ch <-chan Event) {
	b.mu.RLock()
	st, ok := b.streams[id]
	b.mu.RUnlock()

	if ok {
		st.unsubscribe(ch)
	}
}

// Drop removes a stream, closing any remaining subscriber channels. Called
// when the message itself is removed.
func (b *Broadcaster) Drop(id string) {
	b.mu.Lock()
	st, ok := b.streams[id]
	delete(b.streams, id)
	b.mu.Unlock()

	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for ch := range st.subs {
		delete(st.subs, ch)
		close(ch)
	}
	st.terminal = true
}

// SubscriberCount reports the live subscribers across all streams.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, st := range b.streams {
		total += st.subscriberCount()
	}
	return total
}

// Len reports the number of registered streams.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams)
}
