package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ============================================================================
// Property-Based Tests for Store Invariants
// ============================================================================

var priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// TestProperty_AtMostOneProcessing verifies that no interleaving of submits,
// claims and transitions leaves more than one message in the processing
// state.
func TestProperty_AtMostOneProcessing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(0)
		var inFlight string

		numOps := rapid.IntRange(1, 50).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("op-%d", i)) {
			case 0:
				p := rapid.SampledFrom(priorities).Draw(t, fmt.Sprintf("prio-%d", i))
				_, err := s.Submit(fmt.Sprintf("msg-%d", i), p, "")
				require.NoError(t, err)
			case 1:
				if inFlight != "" {
					continue
				}
				if id, ok := s.Scheduler().TryDequeue(); ok {
					if _, claimed := s.BeginProcessing(id); claimed {
						inFlight = id
					}
				}
			case 2:
				if inFlight != "" {
					_, err := s.Transition(inFlight, StateCompleted, TransitionOpts{Result: "r"})
					require.NoError(t, err)
					inFlight = ""
				}
			case 3:
				for _, queued := range s.ListQueued() {
					_, err := s.Cancel(queued.ID)
					require.NoError(t, err)
					break
				}
			}

			sum := s.Summary()
			if sum.Processing != nil {
				require.Equal(t, inFlight, sum.Processing.ID)
			} else {
				require.Empty(t, inFlight)
			}
		}
	})
}

// TestProperty_DispatchOrderRespectsPriorityThenFIFO verifies that draining
// the scheduler yields messages in (priority rank, submission order).
func TestProperty_DispatchOrderRespectsPriorityThenFIFO(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(0)

		numMsgs := rapid.IntRange(1, 30).Draw(t, "numMsgs")
		for i := 0; i < numMsgs; i++ {
			p := rapid.SampledFrom(priorities).Draw(t, fmt.Sprintf("prio-%d", i))
			_, err := s.Submit(fmt.Sprintf("msg-%d", i), p, "")
			require.NoError(t, err)
		}

		var prev *Message
		for {
			id, ok := s.Scheduler().TryDequeue()
			if !ok {
				break
			}
			msg, claimed := s.BeginProcessing(id)
			require.True(t, claimed)

			if prev != nil {
				require.LessOrEqual(t, prev.Priority.Rank(), msg.Priority.Rank())
				if prev.Priority.Rank() == msg.Priority.Rank() {
					require.Less(t, prev.Sequence, msg.Sequence)
				}
			}

			done, err := s.Transition(id, StateCompleted, TransitionOpts{})
			require.NoError(t, err)
			prev = &done
		}
		require.Equal(t, 0, s.QueuedCount())
	})
}

// TestProperty_QueuePositionsAreAPermutation verifies that queued messages
// always hold the positions 0..n-1 with no gaps or duplicates, and that
// positions agree with the dispatch-order listing.
func TestProperty_QueuePositionsAreAPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(0)

		numMsgs := rapid.IntRange(1, 25).Draw(t, "numMsgs")
		ids := make([]string, 0, numMsgs)
		for i := 0; i < numMsgs; i++ {
			p := rapid.SampledFrom(priorities).Draw(t, fmt.Sprintf("prio-%d", i))
			msg, err := s.Submit(fmt.Sprintf("msg-%d", i), p, "")
			require.NoError(t, err)
			ids = append(ids, msg.ID)
		}

		numCancels := rapid.IntRange(0, numMsgs).Draw(t, "numCancels")
		for i := 0; i < numCancels; i++ {
			idx := rapid.IntRange(0, numMsgs-1).Draw(t, fmt.Sprintf("cancel-%d", i))
			_, err := s.Cancel(ids[idx])
			if err != nil {
				require.ErrorIs(t, err, ErrNotCancellable)
			}
		}

		queued := s.ListQueued()
		seen := make(map[int]bool)
		for i, msg := range queued {
			pos, ok := s.QueuePosition(msg.ID)
			require.True(t, ok)
			require.False(t, seen[pos], "duplicate position %d", pos)
			seen[pos] = true
			require.Equal(t, i, pos)
		}
		require.Len(t, seen, s.QueuedCount())
	})
}

// TestProperty_ThreadCountsSumToMessageCount verifies that the per-state
// count map of every thread always sums to the thread's message count.
func TestProperty_ThreadCountsSumToMessageCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(0)
		threads := []string{"t1", "t2", "t3"}

		numOps := rapid.IntRange(1, 40).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("op-%d", i)) {
			case 0:
				tid := rapid.SampledFrom(threads).Draw(t, fmt.Sprintf("tid-%d", i))
				_, err := s.Submit(fmt.Sprintf("msg-%d", i), PriorityNormal, tid)
				require.NoError(t, err)
			case 1:
				if id, ok := s.Scheduler().TryDequeue(); ok {
					if _, claimed := s.BeginProcessing(id); claimed {
						_, err := s.Transition(id, StateCompleted, TransitionOpts{})
						require.NoError(t, err)
					}
				}
			case 2:
				for _, queued := range s.ListQueued() {
					_, err := s.Cancel(queued.ID)
					require.NoError(t, err)
					break
				}
			}
		}

		for _, meta := range s.Threads() {
			total := 0
			for _, n := range meta.States {
				total += n
			}
			require.Equal(t, meta.MessageCount, total,
				"thread %s counts do not sum", meta.ThreadID)
			msgs, err := s.ThreadMessages(meta.ThreadID)
			require.NoError(t, err)
			require.Len(t, msgs, meta.MessageCount)
		}
	})
}
