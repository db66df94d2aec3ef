package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerPriorityOrder(t *testing.T) {
	s := NewScheduler()

	s.Enqueue("low", PriorityLow, 1)
	s.Enqueue("normal", PriorityNormal, 2)
	s.Enqueue("high", PriorityHigh, 3)

	ctx := context.Background()
	for _, want := range []string{"high", "normal", "low"} {
		id, ok := s.Dequeue(ctx)
		require.True(t, ok)
		require.Equal(t, want, id)
	}
	require.Equal(t, 0, s.Len())
}

func TestSchedulerFIFOWithinPriority(t *testing.T) {
	s := NewScheduler()

	s.Enqueue("a", PriorityNormal, 1)
	s.Enqueue("b", PriorityNormal, 2)
	s.Enqueue("c", PriorityNormal, 3)

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		id, ok := s.Dequeue(ctx)
		require.True(t, ok)
		require.Equal(t, want, id)
	}
}

func TestSchedulerDequeueBlocksUntilEnqueue(t *testing.T) {
	s := NewScheduler()

	got := make(chan string, 1)
	go func() {
		id, ok := s.Dequeue(context.Background())
		if ok {
			got <- id
		}
	}()

	select {
	case id := <-got:
		t.Fatalf("dequeue returned %q before enqueue", id)
	case <-time.After(50 * time.Millisecond):
	}

	s.Enqueue("late", PriorityNormal, 1)

	select {
	case id := <-got:
		require.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestSchedulerDequeueUnblocksOnContextCancel(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := s.Dequeue(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return on context cancel")
	}
}

func TestSchedulerDequeueLeavesEntriesOnCancelledContext(t *testing.T) {
	s := NewScheduler()
	s.Enqueue("m1", PriorityNormal, 1)
	s.Enqueue("m2", PriorityNormal, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context wins over pending entries; shutdown must not
	// drain the queue.
	_, ok := s.Dequeue(ctx)
	require.False(t, ok)
	require.Equal(t, 2, s.Len())

	id, ok := s.TryDequeue()
	require.True(t, ok)
	require.Equal(t, "m1", id)
	require.Equal(t, 1, s.Len())
}

func TestSchedulerSnapshotOrder(t *testing.T) {
	s := NewScheduler()

	s.Enqueue("n1", PriorityNormal, 1)
	s.Enqueue("l1", PriorityLow, 2)
	s.Enqueue("h1", PriorityHigh, 3)
	s.Enqueue("n2", PriorityNormal, 4)

	require.Equal(t, []string{"h1", "n1", "n2", "l1"}, s.Snapshot())
	// Snapshot does not consume entries.
	require.Equal(t, 4, s.Len())
}
