// Package api provides the HTTP surface of the broker: REST endpoints for
// message and thread operations plus SSE streams for incremental output.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ryaneggz/agent-q/internal/engine"
	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/queue"
)

// Handler provides HTTP endpoints for the broker engine.
type Handler struct {
	engine *engine.Engine

	// keepalive is the gap between SSE keepalive comments.
	keepalive time.Duration
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Engine is the broker core (required).
	Engine *engine.Engine
	// KeepaliveInterval is the gap between SSE keepalive comments.
	// Zero selects 30 seconds.
	KeepaliveInterval time.Duration
}

// NewHandler creates a new API handler wrapping the given engine.
func NewHandler(cfg HandlerConfig) *Handler {
	keepalive := cfg.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Handler{engine: cfg.Engine, keepalive: keepalive}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Message lifecycle
	mux.HandleFunc("POST /messages", h.Submit)
	mux.HandleFunc("GET /messages/{id}/status", h.Status)
	mux.HandleFunc("GET /messages/{id}/stream", h.Stream)
	mux.HandleFunc("DELETE /messages/{id}", h.Cancel)

	// Queue overview
	mux.HandleFunc("GET /queue", h.Queue)

	// Threads
	mux.HandleFunc("GET /threads", h.Threads)
	mux.HandleFunc("GET /threads/{tid}", h.Thread)
	mux.HandleFunc("GET /threads/{tid}/messages", h.ThreadMessages)

	// Event streaming
	mux.HandleFunc("GET /events", h.StreamAllEvents)

	// Observability
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", h.engine.Metrics().Handler())

	return mux
}

// === Request/Response Types ===

// SubmitRequest is the request body for submitting a message.
type SubmitRequest struct {
	// Message is the prompt text (required, non-blank).
	Message string `json:"message"`
	// Priority is "high", "normal" or "low" (optional, defaults to normal).
	Priority string `json:"priority,omitempty"`
	// ThreadID groups messages into a conversation (optional, max 255 chars).
	ThreadID string `json:"thread_id,omitempty"`
}

// SubmitResponse is the response body for an accepted message.
type SubmitResponse struct {
	MessageID     string    `json:"message_id"`
	State         string    `json:"state"`
	QueuePosition int       `json:"queue_position"`
	CreatedAt     time.Time `json:"created_at"`
	ThreadID      string    `json:"thread_id,omitempty"`
}

// MessageResponse is the status projection of a message.
type MessageResponse struct {
	MessageID     string     `json:"message_id"`
	State         string     `json:"state"`
	UserMessage   string     `json:"user_message"`
	Priority      string     `json:"priority"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Result        *string    `json:"result"`
	Error         *string    `json:"error"`
	QueuePosition *int       `json:"queue_position"`
	ThreadID      string     `json:"thread_id,omitempty"`
}

// CancelResponse confirms a cancellation.
type CancelResponse struct {
	MessageID   string     `json:"message_id"`
	State       string     `json:"state"`
	CompletedAt *time.Time `json:"completed_at"`
}

// QueueResponse is the queue overview.
type QueueResponse struct {
	QueuedCount  int              `json:"queued_count"`
	CountByState map[string]int   `json:"count_by_state"`
	Processing   *ProcessingEntry `json:"processing"`
	Queued       []QueuedEntry    `json:"queued"`
}

// ProcessingEntry describes the in-flight message.
type ProcessingEntry struct {
	MessageID string    `json:"message_id"`
	Priority  string    `json:"priority"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Preview   string    `json:"preview"`
	StartedAt time.Time `json:"started_at"`
}

// QueuedEntry describes one waiting message in dispatch order.
type QueuedEntry struct {
	MessageID string    `json:"message_id"`
	Priority  string    `json:"priority"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
	Position  int       `json:"position"`
}

// ThreadResponse is the aggregate view of one thread.
type ThreadResponse struct {
	ThreadID           string         `json:"thread_id"`
	MessageCount       int            `json:"message_count"`
	CreatedAt          time.Time      `json:"created_at"`
	LastActivity       time.Time      `json:"last_activity"`
	States             map[string]int `json:"states"`
	LastMessagePreview string         `json:"last_message_preview"`
}

// ListThreadsResponse lists threads by recency.
type ListThreadsResponse struct {
	Threads []ThreadResponse `json:"threads"`
	Total   int              `json:"total"`
}

// ThreadMessagesResponse is a thread's ordered history.
type ThreadMessagesResponse struct {
	ThreadID string            `json:"thread_id"`
	Messages []MessageResponse `json:"messages"`
}

// ErrorResponse is the error body for all failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// === Handlers ===

// Submit accepts a prompt for asynchronous processing.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}

	priority, err := queue.ParsePriority(req.Priority)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), "")
		return
	}

	msg, position, err := h.engine.Submit(req.Message, priority, req.ThreadID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, SubmitResponse{
		MessageID:     msg.ID,
		State:         string(msg.State),
		QueuePosition: position,
		CreatedAt:     msg.CreatedAt,
		ThreadID:      msg.ThreadID,
	})
}

// Status returns the projection of one message.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.Get(r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.messageToResponse(msg))
}

// Cancel withdraws a queued message.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.Cancel(r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CancelResponse{
		MessageID:   msg.ID,
		State:       string(msg.State),
		CompletedAt: msg.CompletedAt,
	})
}

// Queue returns the point-in-time queue overview.
func (h *Handler) Queue(w http.ResponseWriter, _ *http.Request) {
	sum := h.engine.Summary()

	resp := QueueResponse{
		QueuedCount:  sum.QueuedCount,
		CountByState: make(map[string]int, len(sum.CountByState)),
		Queued:       make([]QueuedEntry, 0, len(sum.Queued)),
	}
	for state, n := range sum.CountByState {
		resp.CountByState[string(state)] = n
	}
	if sum.Processing != nil {
		resp.Processing = &ProcessingEntry{
			MessageID: sum.Processing.ID,
			Priority:  string(sum.Processing.Priority),
			ThreadID:  sum.Processing.ThreadID,
			Preview:   sum.Processing.Preview,
			StartedAt: sum.Processing.StartedAt,
		}
	}
	for _, entry := range sum.Queued {
		resp.Queued = append(resp.Queued, QueuedEntry{
			MessageID: entry.ID,
			Priority:  string(entry.Priority),
			ThreadID:  entry.ThreadID,
			Preview:   entry.Preview,
			CreatedAt: entry.CreatedAt,
			Position:  entry.Position,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Threads lists all threads, most recently active first.
func (h *Handler) Threads(w http.ResponseWriter, _ *http.Request) {
	threads := h.engine.Threads()

	resp := ListThreadsResponse{
		Threads: make([]ThreadResponse, 0, len(threads)),
		Total:   len(threads),
	}
	for _, meta := range threads {
		resp.Threads = append(resp.Threads, threadToResponse(meta))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Thread returns one thread's aggregate metadata.
func (h *Handler) Thread(w http.ResponseWriter, r *http.Request) {
	meta, err := h.engine.ThreadMetadata(r.PathValue("tid"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, threadToResponse(meta))
}

// ThreadMessages returns a thread's ordered history.
func (h *Handler) ThreadMessages(w http.ResponseWriter, r *http.Request) {
	tid := r.PathValue("tid")
	msgs, err := h.engine.ThreadMessages(tid)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	resp := ThreadMessagesResponse{
		ThreadID: tid,
		Messages: make([]MessageResponse, 0, len(msgs)),
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, h.messageToResponse(msg))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Helpers ===

func (h *Handler) messageToResponse(msg queue.Message) MessageResponse {
	resp := MessageResponse{
		MessageID:   msg.ID,
		State:       string(msg.State),
		UserMessage: msg.UserMessage,
		Priority:    string(msg.Priority),
		CreatedAt:   msg.CreatedAt,
		StartedAt:   msg.StartedAt,
		CompletedAt: msg.CompletedAt,
		ThreadID:    msg.ThreadID,
	}
	if msg.State == queue.StateCompleted {
		result := msg.Result
		resp.Result = &result
	}
	if msg.State == queue.StateFailed {
		errText := msg.Error
		resp.Error = &errText
	}
	if msg.State == queue.StateQueued {
		if position, ok := h.engine.QueuePosition(msg.ID); ok {
			resp.QueuePosition = &position
		}
	}
	return resp
}

func threadToResponse(meta queue.ThreadMetadata) ThreadResponse {
	states := make(map[string]int, len(queue.States))
	for _, state := range queue.States {
		states[string(state)] = meta.States[state]
	}
	return ThreadResponse{
		ThreadID:           meta.ThreadID,
		MessageCount:       meta.MessageCount,
		CreatedAt:          meta.CreatedAt,
		LastActivity:       meta.LastActivity,
		States:             states,
		LastMessagePreview: meta.LastMessagePreview,
	}
}

// writeEngineError maps core sentinel errors onto the HTTP error taxonomy.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), "")
	case errors.Is(err, queue.ErrQueueFull):
		h.writeError(w, http.StatusServiceUnavailable, "queue_full", "Queue is full, retry later", "")
	case errors.Is(err, queue.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
	case errors.Is(err, queue.ErrThreadNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Thread not found", "")
	case errors.Is(err, queue.ErrNotCancellable):
		h.writeError(w, http.StatusConflict, "not_cancellable", err.Error(), "")
	default:
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal error", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
