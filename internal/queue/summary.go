package queue

import "time"

// QueuedPreview is one waiting message in the queue summary, in dispatch
// order.
type QueuedPreview struct {
	ID        string
	Priority  Priority
	ThreadID  string
	Preview   string
	CreatedAt time.Time
	Position  int
}

// ProcessingPreview describes the message currently held by the worker.
type ProcessingPreview struct {
	ID        string
	Priority  Priority
	ThreadID  string
	Preview   string
	StartedAt time.Time
}

// Summary is the point-in-time view of the queue: per-state counts over
// every known message, the in-flight message, if any, and every waiting
// message in the order the worker will take them.
type Summary struct {
	QueuedCount  int
	CountByState map[State]int
	Processing   *ProcessingPreview
	Queued       []QueuedPreview
}

// Summary builds the queue overview under a single read lock so the counts
// and the listing agree.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		QueuedCount:  s.queued,
		CountByState: make(map[State]int, len(States)),
		Queued:       make([]QueuedPreview, 0, s.queued),
	}
	for _, state := range States {
		sum.CountByState[state] = 0
	}
	for _, msg := range s.messages {
		sum.CountByState[msg.State]++
	}

	for _, id := range s.sched.Snapshot() {
		msg, ok := s.messages[id]
		if !ok || msg.State != StateQueued {
			continue
		}
		sum.Queued = append(sum.Queued, QueuedPreview{
			ID:        msg.ID,
			Priority:  msg.Priority,
			ThreadID:  msg.ThreadID,
			Preview:   msg.Preview(),
			CreatedAt: msg.CreatedAt,
			Position:  len(sum.Queued),
		})
	}

	for _, msg := range s.messages {
		if msg.State == StateProcessing {
			sum.Processing = &ProcessingPreview{
				ID:        msg.ID,
				Priority:  msg.Priority,
				ThreadID:  msg.ThreadID,
				Preview:   msg.Preview(),
				StartedAt: *msg.StartedAt,
			}
			break
		}
	}
	return sum
}
