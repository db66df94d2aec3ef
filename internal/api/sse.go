package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/queue"
	"github.com/ryaneggz/agent-q/internal/stream"
)

// waitingPayload is the one-shot frame sent to a subscriber whose message is
// still waiting in the queue.
type waitingPayload struct {
	State    string `json:"state"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

type chunkPayload struct {
	Type  string `json:"type"`
	Chunk string `json:"chunk"`
	Index int    `json:"index"`
}

type donePayload struct {
	State       string    `json:"state"`
	Result      string    `json:"result"`
	CompletedAt time.Time `json:"completed_at"`
}

type errorPayload struct {
	State       string    `json:"state"`
	Error       string    `json:"error"`
	CompletedAt time.Time `json:"completed_at"`
}

type cancelledPayload struct {
	State       string    `json:"state"`
	CompletedAt time.Time `json:"completed_at"`
}

// Stream serves a message's event stream over SSE: replayed history first,
// then the live tail, ending at the terminal event. A subscriber attaching
// while the message is still queued first receives a synthesized `waiting`
// frame with its current position.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snapshot, events, ok := h.engine.Subscribe(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
		return
	}
	defer h.engine.Unsubscribe(id, events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	// The waiting frame is synthesized at subscribe time, never replayed.
	if msg, err := h.engine.Get(id); err == nil && msg.State == queue.StateQueued {
		if position, ok := h.engine.QueuePosition(id); ok {
			writeFrame(w, "waiting", waitingPayload{
				State:    string(queue.StateQueued),
				Position: position,
				Message:  "Waiting in queue",
			})
		}
	}

	for _, ev := range snapshot {
		writeStreamEvent(w, ev)
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeStreamEvent(w, ev)
			flusher.Flush()
		}
	}
}

// writeStreamEvent serializes one broadcast event as an SSE frame. The
// internal started marker has no wire representation.
func writeStreamEvent(w http.ResponseWriter, ev stream.Event) {
	switch ev.Kind {
	case stream.KindStarted:
	case stream.KindChunk:
		writeFrame(w, "chunk", chunkPayload{Type: "content", Chunk: ev.Text, Index: ev.Index})
	case stream.KindDone:
		writeFrame(w, "done", donePayload{
			State:       string(queue.StateCompleted),
			Result:      ev.Result,
			CompletedAt: ev.CompletedAt,
		})
	case stream.KindError:
		writeFrame(w, "error", errorPayload{
			State:       string(queue.StateFailed),
			Error:       ev.Message,
			CompletedAt: ev.CompletedAt,
		})
	case stream.KindCancelled:
		writeFrame(w, "cancelled", cancelledPayload{
			State:       string(queue.StateCancelled),
			CompletedAt: ev.CompletedAt,
		})
	}
}

// StreamAllEvents serves the engine lifecycle feed over SSE. Every
// submission, dispatch, terminal transition and cancellation appears as one
// frame; the stream runs until the client disconnects.
func (h *Handler) StreamAllEvents(w http.ResponseWriter, r *http.Request) {
	events := h.engine.Feed().Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeFrame(w, string(ev.Type), map[string]any{
				"message_id": ev.Payload.MessageID,
				"thread_id":  ev.Payload.ThreadID,
				"priority":   string(ev.Payload.Priority),
				"state":      string(ev.Payload.State),
				"timestamp":  ev.Timestamp,
			})
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error(log.CatAPI, "failed to marshal SSE payload", "event", event, "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
