package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
)

// schedEntry is one queued message in the dispatch order.
type schedEntry struct {
	id   string
	rank int
	seq  uint64
}

// entryHeap is a min-heap ordered by (rank, seq).
type entryHeap []schedEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(schedEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler is the priority-ordered set of queued message ids. The minimum
// (rank, sequence) pair dispatches next; the sequence guarantees FIFO within
// a priority class.
//
// The scheduler is a passive structure: it knows nothing about message
// state. Entries are never withdrawn in place; a cancelled message is left
// in the heap and the dispatcher discards it after re-checking its state.
type Scheduler struct {
	mu      sync.Mutex
	entries entryHeap

	// signal wakes a blocked Dequeue after an Enqueue. Buffered with
	// capacity 1: a stale token only causes one extra loop iteration.
	signal chan struct{}
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{signal: make(chan struct{}, 1)}
}

// Enqueue adds a message id with its dispatch ordering key. O(log n).
func (s *Scheduler) Enqueue(id string, priority Priority, seq uint64) {
	s.mu.Lock()
	heap.Push(&s.entries, schedEntry{id: id, rank: priority.Rank(), seq: seq})
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head entry, blocking while the scheduler
// is empty. Returns ok=false as soon as ctx is cancelled, even when entries
// remain; shutdown leaves queued messages in place rather than draining them.
func (s *Scheduler) Dequeue(ctx context.Context) (string, bool) {
	for {
		if ctx.Err() != nil {
			return "", false
		}

		if id, ok := s.TryDequeue(); ok {
			return id, true
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-s.signal:
		}
	}
}

// TryDequeue removes and returns the head entry without blocking.
func (s *Scheduler) TryDequeue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return "", false
	}
	e := heap.Pop(&s.entries).(schedEntry)
	return e.id, true
}

// Len returns the number of entries, including entries for messages that
// were cancelled after enqueue.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns the entry ids in dispatch order without removing them.
func (s *Scheduler) Snapshot() []string {
	s.mu.Lock()
	entries := append(entryHeap(nil), s.entries...)
	s.mu.Unlock()

	sort.Sort(entries)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}
