package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ryaneggz/agent-q/internal/log"
)

// DefaultMaxQueueSize is the default cap on messages in StateQueued.
const DefaultMaxQueueSize = 1000

// TransitionOpts carries the optional payload of a state transition.
type TransitionOpts struct {
	// Result is recorded on the transition to StateCompleted.
	Result string
	// Error is recorded on the transition to StateFailed.
	Error string
}

// Store is the authoritative table of all messages plus the thread index
// and the priority scheduler. One RWMutex guards the message table, the
// thread index and the queued-count bookkeeping; writers are Submit, Cancel
// and the dispatch worker's transitions. The scheduler carries its own
// short-lived lock so the worker can block on Dequeue without holding the
// store lock.
type Store struct {
	mu        sync.RWMutex
	messages  map[string]*Message
	threads   map[string]*threadEntry
	sched     *Scheduler
	seq       uint64
	queued    int
	maxQueued int

	now func() time.Time
}

// NewStore creates an empty store. maxQueued <= 0 selects
// DefaultMaxQueueSize.
func NewStore(maxQueued int) *Store {
	if maxQueued <= 0 {
		maxQueued = DefaultMaxQueueSize
	}
	return &Store{
		messages:  make(map[string]*Message),
		threads:   make(map[string]*threadEntry),
		sched:     NewScheduler(),
		maxQueued: maxQueued,
		now:       time.Now,
	}
}

// Scheduler exposes the dispatch ordering structure for the worker.
func (s *Store) Scheduler() *Scheduler { return s.sched }

// Submit validates and records a new message in StateQueued, updates the
// thread index and enqueues it for dispatch. Returns ErrInvalidInput for an
// empty prompt or oversize thread id, ErrQueueFull when the queued cap is
// reached.
func (s *Store) Submit(userMessage string, priority Priority, threadID string) (Message, error) {
	if strings.TrimSpace(userMessage) == "" {
		return Message{}, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if utf8.RuneCountInString(threadID) > MaxThreadIDLength {
		return Message{}, fmt.Errorf("%w: thread id exceeds %d characters", ErrInvalidInput, MaxThreadIDLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queued >= s.maxQueued {
		return Message{}, ErrQueueFull
	}

	now := s.now()
	s.seq++
	msg := &Message{
		ID:          uuid.NewString(),
		UserMessage: userMessage,
		Priority:    priority,
		ThreadID:    threadID,
		State:       StateQueued,
		CreatedAt:   now,
		Sequence:    s.seq,
	}

	s.messages[msg.ID] = msg
	s.queued++
	s.indexThreadMessage(msg)
	s.sched.Enqueue(msg.ID, msg.Priority, msg.Sequence)

	log.Info(log.CatQueue, "message enqueued",
		"id", msg.ID, "priority", msg.Priority, "thread", threadID, "queued", s.queued)
	return msg.clone(), nil
}

// Get returns a copy of the message, or ErrNotFound.
func (s *Store) Get(id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return msg.clone(), nil
}

// Transition applies a state change. It is the only writer of message
// state: it validates the edge, stamps started_at/completed_at, records the
// result or error, and keeps the thread metadata counts in lockstep.
func (s *Store) Transition(id string, to State, opts TransitionOpts) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, to, opts)
}

func (s *Store) transitionLocked(id string, to State, opts TransitionOpts) (Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if !CanTransition(msg.State, to) {
		return Message{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, msg.State, to)
	}

	from := msg.State
	now := s.now()
	msg.State = to

	switch to {
	case StateProcessing:
		msg.StartedAt = &now
	case StateCompleted:
		msg.CompletedAt = &now
		msg.Result = opts.Result
	case StateFailed:
		msg.CompletedAt = &now
		msg.Error = opts.Error
	case StateCancelled:
		msg.CompletedAt = &now
	}

	if from == StateQueued {
		s.queued--
	}
	s.retagThreadState(msg, from, to, now)

	log.Info(log.CatQueue, "message state updated", "id", id, "from", from, "to", to)
	return msg.clone(), nil
}

// BeginProcessing claims a dequeued id for the worker. If the message is no
// longer queued (it was cancelled after enqueue) it reports claimed=false
// and the caller skips it; this re-check is the authoritative withdrawal
// mechanism for the scheduler.
func (s *Store) BeginProcessing(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.State != StateQueued {
		if ok {
			log.Debug(log.CatQueue, "skipping stale scheduler entry", "id", id, "state", msg.State)
		}
		return Message{}, false
	}

	claimed, err := s.transitionLocked(id, StateProcessing, TransitionOpts{})
	if err != nil {
		// Unreachable given the state check above.
		return Message{}, false
	}
	return claimed, true
}

// AppendChunk appends a streamed fragment to a message in StateProcessing
// and returns its index.
func (s *Store) AppendChunk(id, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return 0, ErrNotFound
	}
	if msg.State != StateProcessing {
		return 0, fmt.Errorf("%w: chunk append in state %s", ErrInvalidTransition, msg.State)
	}
	msg.Chunks = append(msg.Chunks, text)
	return len(msg.Chunks) - 1, nil
}

// Cancel marks a queued message cancelled. Messages already processing (or
// terminal) report ErrNotCancellable; the in-flight message is never
// preempted.
func (s *Store) Cancel(id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.State != StateQueued {
		return Message{}, fmt.Errorf("%w: state is %s", ErrNotCancellable, msg.State)
	}
	return s.transitionLocked(id, StateCancelled, TransitionOpts{})
}

// QueuePosition returns the 0-indexed dispatch rank of a queued message.
// ok=false when the message is unknown or no longer queued.
func (s *Store) QueuePosition(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queuePositionLocked(id)
}

func (s *Store) queuePositionLocked(id string) (int, bool) {
	msg, ok := s.messages[id]
	if !ok || msg.State != StateQueued {
		return 0, false
	}

	position := 0
	for _, other := range s.messages {
		if other.State != StateQueued || other.ID == id {
			continue
		}
		if other.Priority.Rank() < msg.Priority.Rank() ||
			(other.Priority.Rank() == msg.Priority.Rank() && other.Sequence < msg.Sequence) {
			position++
		}
	}
	return position, true
}

// ListQueued returns copies of all queued messages in dispatch order.
func (s *Store) ListQueued() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, s.queued)
	for _, id := range s.sched.Snapshot() {
		if msg, ok := s.messages[id]; ok && msg.State == StateQueued {
			out = append(out, msg.clone())
		}
	}
	return out
}

// QueuedCount returns the number of messages in StateQueued.
func (s *Store) QueuedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queued
}

// Remove deletes a message outright, unwinding the thread index and
// metadata with it. This is the administrative expiry path used by the
// retention policy; it is never called during normal operation.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return
	}
	if msg.State == StateQueued {
		s.queued--
	}
	s.unindexThreadMessage(msg)
	delete(s.messages, id)
	log.Debug(log.CatQueue, "message expired", "id", id, "thread", msg.ThreadID)
}
