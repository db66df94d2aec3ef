package stream

import (
	"sync"

	"github.com/ryaneggz/agent-q/internal/log"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity. A
// subscriber that falls this far behind the publisher is disconnected.
const DefaultSubscriberBuffer = 256

// stream is the broadcast state for one message id.
type stream struct {
	mu       sync.Mutex
	id       string
	history  []Event
	terminal bool
	subs     map[chan Event]struct{}
	bufSize  int
}

func newStream(id string, bufSize int) *stream {
	if bufSize < 1 {
		bufSize = DefaultSubscriberBuffer
	}
	return &stream{
		id:      id,
		subs:    make(map[chan Event]struct{}),
		bufSize: bufSize,
	}
}

// publish appends the event and fans it out. A full subscriber channel
// disconnects that subscriber only; the publisher never blocks. A terminal
// event latches the stream and closes every remaining channel after
// delivery. Events published after the latch are dropped.
func (st *stream) publish(ev Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.terminal {
		log.Warn(log.CatStream, "event after terminal dropped", "id", st.id, "kind", ev.Kind)
		return
	}

	st.history = append(st.history, ev)

	for ch := range st.subs {
		select {
		case ch <- ev:
		default:
			log.Warn(log.CatStream, "slow subscriber disconnected", "id", st.id)
			delete(st.subs, ch)
			close(ch)
		}
	}

	if ev.Kind.Terminal() {
		st.terminal = true
		for ch := range st.subs {
			delete(st.subs, ch)
			close(ch)
		}
	}
}

// subscribe atomically snapshots the history and registers a channel for
// the live tail. On a latched stream the channel comes back already closed;
// the snapshot then ends in the terminal event.
func (st *stream) subscribe() ([]Event, <-chan Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snapshot := append([]Event(nil), st.history...)
	ch := make(chan Event, st.bufSize)
	if st.terminal {
		close(ch)
		return snapshot, ch
	}
	st.subs[ch] = struct{}{}
	return snapshot, ch
}

// unsubscribe removes a live channel, closing it if still registered.
func (st *stream) unsubscribe(ch <-chan Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for sub := range st.subs {
		if sub == ch {
			delete(st.subs, sub)
			close(sub)
			return
		}
	}
}

func (st *stream) subscriberCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}
