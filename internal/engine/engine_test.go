package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryaneggz/agent-q/internal/pubsub"
	"github.com/ryaneggz/agent-q/internal/queue"
	"github.com/ryaneggz/agent-q/internal/responder"
	"github.com/ryaneggz/agent-q/internal/responder/script"
	"github.com/ryaneggz/agent-q/internal/stream"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Responder == nil {
		opts.Responder = script.New()
	}
	e := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

// drainStream reads a subscription until the channel closes.
func drainStream(t *testing.T, snapshot []stream.Event, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	events := append([]stream.Event(nil), snapshot...)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("stream did not terminate; have %d events", len(events))
		}
	}
}

func waitState(t *testing.T, e *Engine, id string, want queue.State) queue.Message {
	t.Helper()
	var msg queue.Message
	require.Eventually(t, func() bool {
		var err error
		msg, err = e.Get(id)
		return err == nil && msg.State == want
	}, 5*time.Second, 5*time.Millisecond)
	return msg
}

func TestSubmitProcessCompleteStream(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"The ", "answer ", "is 42."})),
	})

	msg, position, err := e.Submit("what is the answer", queue.PriorityNormal, "")
	require.NoError(t, err)
	require.Equal(t, 0, position)
	require.Equal(t, queue.StateQueued, msg.State)

	snapshot, ch, ok := e.Subscribe(msg.ID)
	require.True(t, ok)

	e.Start()
	events := drainStream(t, snapshot, ch)

	require.Equal(t, stream.KindStarted, events[0].Kind)
	require.Equal(t, stream.Chunk(0, "The "), events[1])
	require.Equal(t, stream.Chunk(1, "answer "), events[2])
	require.Equal(t, stream.Chunk(2, "is 42."), events[3])
	require.Equal(t, stream.KindDone, events[4].Kind)
	require.Equal(t, "The answer is 42.", events[4].Result)

	done := waitState(t, e, msg.ID, queue.StateCompleted)
	require.Equal(t, "The answer is 42.", done.Result)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
}

func TestResultConcatenatesChunksWithoutFinal(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"a", "b", "c"})),
	})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)

	done := waitState(t, e, msg.ID, queue.StateCompleted)
	require.Equal(t, "abc", done.Result)
	require.Equal(t, []string{"a", "b", "c"}, done.Chunks)
}

func TestFinalOverridesConcatenation(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"raw "}), script.WithFinal("polished")),
	})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)

	done := waitState(t, e, msg.ID, queue.StateCompleted)
	require.Equal(t, "polished", done.Result)
}

func TestPriorityDispatchOrder(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"ok"})),
	})

	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	feed := e.Feed().Subscribe(feedCtx)

	low, _, err := e.Submit("low", queue.PriorityLow, "")
	require.NoError(t, err)
	normal, _, err := e.Submit("normal", queue.PriorityNormal, "")
	require.NoError(t, err)
	high, _, err := e.Submit("high", queue.PriorityHigh, "")
	require.NoError(t, err)

	e.Start()

	var started []string
	deadline := time.After(5 * time.Second)
	for len(started) < 3 {
		select {
		case ev := <-feed:
			if ev.Type == pubsub.StartedEvent {
				started = append(started, ev.Payload.MessageID)
			}
		case <-deadline:
			t.Fatalf("saw %d dispatches", len(started))
		}
	}

	require.Equal(t, []string{high.ID, normal.ID, low.ID}, started)
}

func TestCancelQueuedSkippedByWorker(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"done"})),
	})

	a, _, err := e.Submit("a", queue.PriorityNormal, "")
	require.NoError(t, err)
	b, _, err := e.Submit("b", queue.PriorityNormal, "")
	require.NoError(t, err)

	snapshot, ch, ok := e.Subscribe(b.ID)
	require.True(t, ok)

	cancelled, err := e.Cancel(b.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StateCancelled, cancelled.State)

	events := drainStream(t, snapshot, ch)
	require.Len(t, events, 1)
	require.Equal(t, stream.KindCancelled, events[0].Kind)

	e.Start()
	waitState(t, e, a.ID, queue.StateCompleted)

	sum := e.Summary()
	require.Equal(t, 1, sum.CountByState[queue.StateCompleted])
	require.Equal(t, 1, sum.CountByState[queue.StateCancelled])
	require.Equal(t, 0, sum.CountByState[queue.StateQueued])
	require.Equal(t, 0, sum.CountByState[queue.StateProcessing])

	got, err := e.Get(b.ID)
	require.NoError(t, err)
	require.Nil(t, got.StartedAt)
}

func TestCancelProcessingRejected(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"slow"}), script.WithDelay(200*time.Millisecond)),
	})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)
	waitState(t, e, msg.ID, queue.StateProcessing)

	_, err = e.Cancel(msg.ID)
	require.ErrorIs(t, err, queue.ErrNotCancellable)

	waitState(t, e, msg.ID, queue.StateCompleted)
}

func TestLateSubscriberReplaysFinishedStream(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"The ", "answer ", "is 42."})),
	})
	e.Start()

	msg, _, err := e.Submit("q", queue.PriorityNormal, "")
	require.NoError(t, err)
	waitState(t, e, msg.ID, queue.StateCompleted)

	snapshot, ch, ok := e.Subscribe(msg.ID)
	require.True(t, ok)

	events := drainStream(t, snapshot, ch)
	require.Len(t, events, 5)
	require.Equal(t, stream.KindStarted, events[0].Kind)
	for i, text := range []string{"The ", "answer ", "is 42."} {
		require.Equal(t, stream.Chunk(i, text), events[i+1])
	}
	require.Equal(t, stream.KindDone, events[4].Kind)
	require.Equal(t, "The answer is 42.", events[4].Result)
}

func TestThreadHistory(t *testing.T) {
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"ok"})),
	})
	e.Start()

	a, _, err := e.Submit("q1", queue.PriorityNormal, "t")
	require.NoError(t, err)
	waitState(t, e, a.ID, queue.StateCompleted)

	b, _, err := e.Submit("q2", queue.PriorityNormal, "t")
	require.NoError(t, err)
	waitState(t, e, b.ID, queue.StateCompleted)

	msgs, err := e.ThreadMessages("t")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, a.ID, msgs[0].ID)
	require.Equal(t, b.ID, msgs[1].ID)

	meta, err := e.ThreadMetadata("t")
	require.NoError(t, err)
	require.Equal(t, 2, meta.MessageCount)
	require.Equal(t, map[queue.State]int{queue.StateCompleted: 2}, meta.States)
	require.Equal(t, "q2", meta.LastMessagePreview)
}

func TestProcessingTimeout(t *testing.T) {
	e := newEngine(t, Options{
		ProcessingTimeout: 100 * time.Millisecond,
		Responder:         script.New(script.WithChunks([]string{"never"}), script.WithDelay(5*time.Second)),
	})

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)
	snapshot, ch, ok := e.Subscribe(msg.ID)
	require.True(t, ok)

	e.Start()
	start := time.Now()
	events := drainStream(t, snapshot, ch)
	require.Less(t, time.Since(start), 2*time.Second)

	last := events[len(events)-1]
	require.Equal(t, stream.KindError, last.Kind)
	require.Equal(t, TimeoutError, last.Message)

	failed := waitState(t, e, msg.ID, queue.StateFailed)
	require.Equal(t, TimeoutError, failed.Error)
}

func TestResponderErrorFailsMessage(t *testing.T) {
	boom := errors.New("model unavailable")
	e := newEngine(t, Options{
		Responder: script.New(script.WithChunks([]string{"partial"}), script.WithFailure(boom)),
	})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)

	failed := waitState(t, e, msg.ID, queue.StateFailed)
	require.Equal(t, "model unavailable", failed.Error)
	require.Equal(t, []string{"partial"}, failed.Chunks)
}

func TestResponderStartErrorFailsMessage(t *testing.T) {
	e := newEngine(t, Options{Responder: failingResponder{}})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)

	failed := waitState(t, e, msg.ID, queue.StateFailed)
	require.Contains(t, failed.Error, "no backend")
}

func TestSubmitValidation(t *testing.T) {
	e := newEngine(t, Options{})

	_, _, err := e.Submit("  ", queue.PriorityNormal, "")
	require.ErrorIs(t, err, queue.ErrInvalidInput)

	_, _, err = e.Submit("x", queue.PriorityNormal, strings.Repeat("t", queue.MaxThreadIDLength+1))
	require.ErrorIs(t, err, queue.ErrInvalidInput)
}

func TestSubmitQueueFull(t *testing.T) {
	e := newEngine(t, Options{MaxQueueSize: 1})

	_, _, err := e.Submit("one", queue.PriorityNormal, "")
	require.NoError(t, err)
	_, _, err = e.Submit("two", queue.PriorityNormal, "")
	require.ErrorIs(t, err, queue.ErrQueueFull)
}

func TestQueuePositionsAtSubmit(t *testing.T) {
	e := newEngine(t, Options{})

	_, p1, err := e.Submit("first", queue.PriorityNormal, "")
	require.NoError(t, err)
	require.Equal(t, 0, p1)

	_, p2, err := e.Submit("second", queue.PriorityNormal, "")
	require.NoError(t, err)
	require.Equal(t, 1, p2)

	_, p3, err := e.Submit("urgent", queue.PriorityHigh, "")
	require.NoError(t, err)
	require.Equal(t, 0, p3)
}

func TestRetentionExpiresTerminalMessages(t *testing.T) {
	e := newEngine(t, Options{
		RetentionTTL: 100 * time.Millisecond,
		Responder:    script.New(script.WithChunks([]string{"gone"})),
	})
	e.Start()

	msg, _, err := e.Submit("m", queue.PriorityNormal, "")
	require.NoError(t, err)
	waitState(t, e, msg.ID, queue.StateCompleted)

	require.Eventually(t, func() bool {
		_, err := e.Get(msg.ID)
		return errors.Is(err, queue.ErrNotFound)
	}, 5*time.Second, 50*time.Millisecond)

	_, _, ok := e.Subscribe(msg.ID)
	require.False(t, ok)
}

func TestShutdownStopsWorker(t *testing.T) {
	e := New(Options{Responder: script.New()})
	e.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	// Shutdown is idempotent.
	require.NoError(t, e.Shutdown(ctx))
}

func TestShutdownLeavesQueuedMessagesUntouched(t *testing.T) {
	e := New(Options{
		Responder: script.New(script.WithChunks([]string{"slow"}), script.WithDelay(5*time.Second)),
	})
	e.Start()

	first, _, err := e.Submit("in flight", queue.PriorityNormal, "")
	require.NoError(t, err)
	waitState(t, e, first.ID, queue.StateProcessing)

	second, _, err := e.Submit("still waiting", queue.PriorityNormal, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	// The in-flight message fails; everything behind it stays queued.
	failed, err := e.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StateFailed, failed.State)
	require.Equal(t, ShutdownError, failed.Error)

	queued, err := e.Get(second.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StateQueued, queued.State)
}

// failingResponder errors before producing a stream.
type failingResponder struct{}

func (failingResponder) Kind() responder.Kind { return responder.Kind("failing") }

func (failingResponder) Stream(context.Context, responder.Request) (responder.Stream, error) {
	return nil, errors.New("no backend available")
}
