// Package stream provides per-message broadcast channels with replay.
// Every message gets a stream of small tagged events; subscribers attach at
// any time and receive the full history followed by the live tail, ending in
// exactly one terminal event.
package stream

import "time"

// Kind tags a stream event.
type Kind string

const (
	// KindStarted marks the transition to processing. It is replayed to
	// subscribers but carries no payload.
	KindStarted Kind = "started"
	// KindChunk carries one incremental output fragment.
	KindChunk Kind = "chunk"
	// KindDone is the terminal event of a completed message.
	KindDone Kind = "done"
	// KindError is the terminal event of a failed message.
	KindError Kind = "error"
	// KindCancelled is the terminal event of a cancelled message.
	KindCancelled Kind = "cancelled"
)

// Terminal reports whether the kind ends its stream.
func (k Kind) Terminal() bool {
	switch k {
	case KindDone, KindError, KindCancelled:
		return true
	}
	return false
}

// Event is one record on a message stream. Only the fields relevant to the
// kind are set: Index/Text for chunks, Result for done, Message for error,
// CompletedAt for every terminal kind.
type Event struct {
	Kind        Kind
	Index       int
	Text        string
	Result      string
	Message     string
	CompletedAt time.Time
}

// Started builds a started event.
func Started() Event { return Event{Kind: KindStarted} }

// Chunk builds a chunk event.
func Chunk(index int, text string) Event {
	return Event{Kind: KindChunk, Index: index, Text: text}
}

// Done builds the terminal event of a completed message.
func Done(result string, completedAt time.Time) Event {
	return Event{Kind: KindDone, Result: result, CompletedAt: completedAt}
}

// Error builds the terminal event of a failed message.
func Error(message string, completedAt time.Time) Event {
	return Event{Kind: KindError, Message: message, CompletedAt: completedAt}
}

// Cancelled builds the terminal event of a cancelled message.
func Cancelled(completedAt time.Time) Event {
	return Event{Kind: KindCancelled, CompletedAt: completedAt}
}
