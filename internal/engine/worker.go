package engine

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/pubsub"
	"github.com/ryaneggz/agent-q/internal/queue"
	"github.com/ryaneggz/agent-q/internal/responder"
	"github.com/ryaneggz/agent-q/internal/stream"
	"github.com/ryaneggz/agent-q/internal/tracing"
)

// TimeoutError is the error string recorded when a message exceeds its
// processing budget.
const TimeoutError = "processing timeout"

// ShutdownError is recorded when shutdown interrupts the in-flight message.
const ShutdownError = "server shutting down"

// runWorker is the single dispatch loop. It drains the scheduler one entry
// at a time, skipping entries whose message was cancelled after enqueue.
func (e *Engine) runWorker() {
	defer e.wg.Done()

	for {
		id, ok := e.store.Scheduler().Dequeue(e.ctx)
		if !ok {
			return
		}

		msg, claimed := e.store.BeginProcessing(id)
		if !claimed {
			continue
		}

		e.metrics.SetQueueDepth(e.store.QueuedCount())
		e.metrics.SetProcessingInFlight(1)
		e.metrics.QueueWait(msg.StartedAt.Sub(msg.CreatedAt).Seconds())
		e.bcast.Publish(id, stream.Started())
		e.notify(pubsub.StartedEvent, msg)

		e.process(msg)
		e.metrics.SetProcessingInFlight(0)
	}
}

// process drives one claimed message to a terminal state. It never panics
// out of an iteration: responder errors and timeouts become FAILED
// transitions.
func (e *Engine) process(msg queue.Message) {
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Tracer().Start(ctx, tracing.SpanPrefixWorker+"process")
		span.SetAttributes(
			attribute.String(tracing.AttrMessageID, msg.ID),
			attribute.String(tracing.AttrMessagePriority, string(msg.Priority)),
			attribute.String(tracing.AttrThreadID, msg.ThreadID),
		)
		defer span.End()
	}

	log.Info(log.CatWorker, "processing message", "id", msg.ID, "priority", msg.Priority)

	rs, err := e.resp.Stream(ctx, responder.Request{
		MessageID: msg.ID,
		Prompt:    msg.UserMessage,
		ThreadID:  msg.ThreadID,
	})
	if err != nil {
		e.fail(msg, err.Error(), span)
		return
	}

	var chunks []string
	for {
		select {
		case chunk, open := <-rs.Chunks():
			if !open {
				e.settle(msg, rs, chunks, span)
				return
			}
			index, err := e.store.AppendChunk(msg.ID, chunk)
			if err != nil {
				// Only possible if the message left PROCESSING
				// underneath us, which the claim protocol forbids.
				log.ErrorErr(log.CatWorker, "chunk append failed", err, "id", msg.ID)
				panic("engine: chunk append on non-processing message")
			}
			chunks = append(chunks, chunk)
			e.bcast.Publish(msg.ID, stream.Chunk(index, chunk))
		case <-ctx.Done():
			// Stop consuming and abandon the responder; its context is
			// already expired so it winds itself down.
			e.fail(msg, timeoutReason(ctx.Err()), span)
			return
		}
	}
}

// settle records the terminal state after the responder closed its channel.
func (e *Engine) settle(msg queue.Message, rs responder.Stream, chunks []string, span trace.Span) {
	if err := rs.Err(); err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = TimeoutError
		} else if errors.Is(err, context.Canceled) {
			reason = timeoutReason(err)
		}
		e.fail(msg, reason, span)
		return
	}

	result, ok := rs.Final()
	if !ok {
		result = strings.Join(chunks, "")
	}

	done, err := e.store.Transition(msg.ID, queue.StateCompleted, queue.TransitionOpts{Result: result})
	if err != nil {
		log.ErrorErr(log.CatWorker, "completion transition failed", err, "id", msg.ID)
		panic("engine: message table out of sync with worker")
	}

	e.bcast.Publish(msg.ID, stream.Done(done.Result, *done.CompletedAt))
	e.metrics.MessageCompleted(done.CompletedAt.Sub(*done.StartedAt).Seconds())
	e.notify(pubsub.FinishedEvent, done)
	e.retention.track(done.ID)

	if span != nil {
		span.SetAttributes(attribute.Int(tracing.AttrChunkCount, len(chunks)))
		span.AddEvent(tracing.EventMessageFinished)
	}
	log.Info(log.CatWorker, "message completed", "id", msg.ID, "chunks", len(chunks))
}

// fail records a FAILED terminal state with the given reason.
func (e *Engine) fail(msg queue.Message, reason string, span trace.Span) {
	failed, err := e.store.Transition(msg.ID, queue.StateFailed, queue.TransitionOpts{Error: reason})
	if err != nil {
		log.ErrorErr(log.CatWorker, "failure transition failed", err, "id", msg.ID)
		panic("engine: message table out of sync with worker")
	}

	e.bcast.Publish(msg.ID, stream.Error(failed.Error, *failed.CompletedAt))
	e.metrics.MessageFailed(failed.CompletedAt.Sub(*failed.StartedAt).Seconds())
	e.notify(pubsub.FinishedEvent, failed)
	e.retention.track(failed.ID)

	if span != nil {
		span.SetAttributes(attribute.String(tracing.AttrErrorMessage, reason))
	}
	log.Warn(log.CatWorker, "message failed", "id", msg.ID, "error", reason)
}

// timeoutReason distinguishes the budget expiring from engine shutdown.
func timeoutReason(err error) string {
	if errors.Is(err, context.Canceled) {
		return ShutdownError
	}
	return TimeoutError
}
