package queue

import (
	"sort"
	"time"

	"github.com/ryaneggz/agent-q/internal/log"
)

// threadEntry is the index record for one thread. Message ids are kept in
// submission order; counts and last_activity are maintained on every state
// change so thread metadata reads never scan the message table.
type threadEntry struct {
	ids          []string
	createdAt    time.Time
	lastActivity time.Time
	states       map[State]int
}

// ThreadMetadata is the aggregate view of one thread.
type ThreadMetadata struct {
	ThreadID           string
	MessageCount       int
	CreatedAt          time.Time
	LastActivity       time.Time
	States             map[State]int
	LastMessagePreview string
}

// indexThreadMessage records a freshly submitted message in its thread.
// Messages without a thread id are not indexed. Caller holds s.mu.
func (s *Store) indexThreadMessage(msg *Message) {
	if msg.ThreadID == "" {
		return
	}
	entry, ok := s.threads[msg.ThreadID]
	if !ok {
		entry = &threadEntry{
			createdAt: msg.CreatedAt,
			states:    make(map[State]int),
		}
		s.threads[msg.ThreadID] = entry
	}
	entry.ids = append(entry.ids, msg.ID)
	entry.states[msg.State]++
	entry.lastActivity = msg.CreatedAt
}

// retagThreadState moves one message between state buckets and bumps
// last_activity. Caller holds s.mu.
func (s *Store) retagThreadState(msg *Message, from, to State, at time.Time) {
	if msg.ThreadID == "" {
		return
	}
	entry, ok := s.threads[msg.ThreadID]
	if !ok {
		log.Error(log.CatQueue, "thread index missing for message", "id", msg.ID, "thread", msg.ThreadID)
		panic("queue: thread index out of sync with message table")
	}
	entry.states[from]--
	if entry.states[from] <= 0 {
		delete(entry.states, from)
	}
	entry.states[to]++
	entry.lastActivity = at
}

// unindexThreadMessage removes an expired message from its thread, deleting
// the thread entry when it empties. Caller holds s.mu.
func (s *Store) unindexThreadMessage(msg *Message) {
	if msg.ThreadID == "" {
		return
	}
	entry, ok := s.threads[msg.ThreadID]
	if !ok {
		return
	}
	for i, id := range entry.ids {
		if id == msg.ID {
			entry.ids = append(entry.ids[:i], entry.ids[i+1:]...)
			break
		}
	}
	entry.states[msg.State]--
	if entry.states[msg.State] <= 0 {
		delete(entry.states, msg.State)
	}
	if len(entry.ids) == 0 {
		delete(s.threads, msg.ThreadID)
	}
}

// Threads returns metadata for every known thread, most recently active
// first.
func (s *Store) Threads() []ThreadMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ThreadMetadata, 0, len(s.threads))
	for id := range s.threads {
		out = append(out, s.threadMetadataLocked(id))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// ThreadMetadata returns the aggregate view of one thread, or
// ErrThreadNotFound.
func (s *Store) ThreadMetadata(threadID string) (ThreadMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.threads[threadID]; !ok {
		return ThreadMetadata{}, ErrThreadNotFound
	}
	return s.threadMetadataLocked(threadID), nil
}

func (s *Store) threadMetadataLocked(threadID string) ThreadMetadata {
	entry := s.threads[threadID]

	states := make(map[State]int, len(entry.states))
	for state, n := range entry.states {
		states[state] = n
	}

	preview := ""
	if n := len(entry.ids); n > 0 {
		last, ok := s.messages[entry.ids[n-1]]
		if !ok {
			log.Error(log.CatQueue, "thread index references unknown message",
				"thread", threadID, "id", entry.ids[n-1])
			panic("queue: thread index out of sync with message table")
		}
		preview = last.Preview()
	}

	return ThreadMetadata{
		ThreadID:           threadID,
		MessageCount:       len(entry.ids),
		CreatedAt:          entry.createdAt,
		LastActivity:       entry.lastActivity,
		States:             states,
		LastMessagePreview: preview,
	}
}

// ThreadMessages returns copies of a thread's messages in submission order,
// or ErrThreadNotFound.
func (s *Store) ThreadMessages(threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.threads[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}

	out := make([]Message, 0, len(entry.ids))
	for _, id := range entry.ids {
		msg, ok := s.messages[id]
		if !ok {
			log.Error(log.CatQueue, "thread index references unknown message",
				"thread", threadID, "id", id)
			panic("queue: thread index out of sync with message table")
		}
		out = append(out, msg.clone())
	}
	return out, nil
}
