package tracing

// Span attribute keys. These constants define the semantic conventions for
// span attributes across the broker.
const (
	// Message attributes
	AttrMessageID       = "message.id"
	AttrMessagePriority = "message.priority"
	AttrMessageState    = "message.state"
	AttrThreadID        = "thread.id"

	// Queue attributes
	AttrQueueDepth    = "queue.depth"
	AttrQueuePosition = "queue.position"

	// Responder attributes
	AttrResponderKind = "responder.kind"
	AttrChunkCount    = "chunk.count"

	// HTTP attributes
	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixWorker = "worker."
	SpanPrefixHTTP   = "http."
)

// Event names for span events.
const (
	EventMessageQueued    = "message.queued"
	EventMessageClaimed   = "message.claimed"
	EventChunkPublished   = "chunk.published"
	EventMessageFinished  = "message.finished"
	EventMessageCancelled = "message.cancelled"
)
