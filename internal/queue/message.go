// Package queue provides the in-memory message store, thread index and
// priority scheduler that back the dispatch engine. All state lives in
// process memory and is lost on restart.
package queue

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a message.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// States lists every state in a stable order. Useful for building count maps.
var States = []State{StateQueued, StateProcessing, StateCompleted, StateFailed, StateCancelled}

// Terminal reports whether the state is a sink.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// validTransitions is the allowed edge set. Terminal states have no edges.
var validTransitions = map[State][]State{
	StateQueued:     {StateProcessing, StateCancelled},
	StateProcessing: {StateCompleted, StateFailed},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority is the admission priority of a message.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the scheduler ordering rank. Lower dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// ParsePriority validates a priority string. The empty string maps to
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), nil
	case "":
		return PriorityNormal, nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
}

// MaxThreadIDLength is the longest accepted thread identifier.
const MaxThreadIDLength = 255

// PreviewLength caps prompt previews in summaries and thread listings.
const PreviewLength = 100

// Message is one user prompt and its processing record.
// UserMessage, Priority and ThreadID are immutable after creation; the
// remaining fields are mutated only through the Store.
type Message struct {
	ID          string
	UserMessage string
	Priority    Priority
	ThreadID    string
	State       State
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Chunks      []string
	Result      string
	Error       string

	// Sequence is the monotonic submit counter, the FIFO tiebreaker
	// within a priority class.
	Sequence uint64
}

// clone returns a deep copy safe to hand to readers.
func (m *Message) clone() Message {
	c := *m
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}
	c.Chunks = append([]string(nil), m.Chunks...)
	return c
}

// Preview returns the prompt truncated for display. Prompts longer than
// PreviewLength are cut to 97 characters with a "..." suffix.
func (m *Message) Preview() string {
	return truncatePreview(m.UserMessage)
}

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) > PreviewLength {
		return string(runes[:PreviewLength-3]) + "..."
	}
	return s
}
