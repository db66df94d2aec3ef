// Package engine wires the message store, scheduler, stream broadcaster and
// responder into the running broker: one dispatch worker drains the
// scheduler and drives each message through its lifecycle while the engine's
// public methods serve the HTTP adapter.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/metrics"
	"github.com/ryaneggz/agent-q/internal/pubsub"
	"github.com/ryaneggz/agent-q/internal/queue"
	"github.com/ryaneggz/agent-q/internal/responder"
	"github.com/ryaneggz/agent-q/internal/stream"
	"github.com/ryaneggz/agent-q/internal/tracing"
)

// Options configures an Engine.
type Options struct {
	// MaxQueueSize caps waiting messages. <= 0 selects the store default.
	MaxQueueSize int

	// ProcessingTimeout is the per-message wall-clock budget.
	ProcessingTimeout time.Duration

	// RetentionTTL removes terminal messages after this long. 0 keeps
	// them forever.
	RetentionTTL time.Duration

	// Responder generates answers. Required.
	Responder responder.Responder

	// Tracer records worker spans. Nil disables tracing.
	Tracer *tracing.Provider
}

// DefaultProcessingTimeout applies when Options leaves the budget unset.
const DefaultProcessingTimeout = 60 * time.Second

// Engine owns the broker core and its single dispatch worker.
type Engine struct {
	store   *queue.Store
	bcast   *stream.Broadcaster
	resp    responder.Responder
	metrics *metrics.Metrics
	tracer  *tracing.Provider
	feed    *pubsub.Broker[Notification]

	timeout   time.Duration
	retention *retention

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New assembles an engine. Call Start to launch the worker.
func New(opts Options) *Engine {
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = DefaultProcessingTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:   queue.NewStore(opts.MaxQueueSize),
		bcast:   stream.NewBroadcaster(0),
		resp:    opts.Responder,
		metrics: metrics.New(),
		tracer:  opts.Tracer,
		feed:    pubsub.NewBroker[Notification](),
		timeout: opts.ProcessingTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	e.retention = newRetention(e, opts.RetentionTTL)
	return e
}

// Start launches the dispatch worker. Idempotent.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.runWorker()
		log.Info(log.CatWorker, "dispatch worker started", "timeout", e.timeout)
	})
}

// Shutdown stops the worker and waits for the in-flight message to settle,
// or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		e.cancel()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		e.retention.stop()
		e.feed.Close()
		log.Info(log.CatWorker, "engine stopped")
	})
	return err
}

// Metrics exposes the Prometheus collectors for the /metrics handler.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Feed returns the lifecycle notification broker.
func (e *Engine) Feed() *pubsub.Broker[Notification] { return e.feed }

// Submit validates and enqueues a prompt, returning the recorded message
// and its queue position.
func (e *Engine) Submit(userMessage string, priority queue.Priority, threadID string) (queue.Message, int, error) {
	msg, err := e.store.Submit(userMessage, priority, threadID)
	if err != nil {
		e.metrics.MessageRejected(rejectionReason(err))
		return queue.Message{}, 0, err
	}

	e.bcast.Create(msg.ID)
	e.metrics.MessageSubmitted(string(msg.Priority))
	e.metrics.SetQueueDepth(e.store.QueuedCount())
	e.notify(pubsub.SubmittedEvent, msg)

	position, _ := e.store.QueuePosition(msg.ID)
	return msg, position, nil
}

// Get returns a copy of a message.
func (e *Engine) Get(id string) (queue.Message, error) {
	return e.store.Get(id)
}

// QueuePosition returns the dispatch rank of a queued message.
func (e *Engine) QueuePosition(id string) (int, bool) {
	return e.store.QueuePosition(id)
}

// Cancel withdraws a queued message and terminates its stream.
func (e *Engine) Cancel(id string) (queue.Message, error) {
	msg, err := e.store.Cancel(id)
	if err != nil {
		return queue.Message{}, err
	}

	e.bcast.Publish(id, stream.Cancelled(*msg.CompletedAt))
	e.metrics.MessageCancelled()
	e.metrics.SetQueueDepth(e.store.QueuedCount())
	e.notify(pubsub.CancelledEvent, msg)
	e.retention.track(msg.ID)
	return msg, nil
}

// Subscribe attaches to a message's stream: replay snapshot plus live tail.
// ok=false when the message is unknown.
func (e *Engine) Subscribe(id string) ([]stream.Event, <-chan stream.Event, bool) {
	snapshot, ch, ok := e.bcast.Subscribe(id)
	if ok {
		e.metrics.SetStreamSubscribers(e.bcast.SubscriberCount())
	}
	return snapshot, ch, ok
}

// Unsubscribe detaches a live stream channel.
func (e *Engine) Unsubscribe(id string, ch <-chan stream.Event) {
	e.bcast.Unsubscribe(id, ch)
	e.metrics.SetStreamSubscribers(e.bcast.SubscriberCount())
}

// Summary returns the point-in-time queue overview.
func (e *Engine) Summary() queue.Summary {
	return e.store.Summary()
}

// Threads lists thread metadata, most recently active first.
func (e *Engine) Threads() []queue.ThreadMetadata {
	return e.store.Threads()
}

// ThreadMetadata returns the aggregate view of one thread.
func (e *Engine) ThreadMetadata(threadID string) (queue.ThreadMetadata, error) {
	return e.store.ThreadMetadata(threadID)
}

// ThreadMessages returns a thread's messages in submission order.
func (e *Engine) ThreadMessages(threadID string) ([]queue.Message, error) {
	return e.store.ThreadMessages(threadID)
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, queue.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, queue.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}
