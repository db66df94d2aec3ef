package engine

import (
	"github.com/ryaneggz/agent-q/internal/pubsub"
	"github.com/ryaneggz/agent-q/internal/queue"
)

// Notification is the payload of the engine's lifecycle feed. Every
// submission, dispatch, terminal transition and cancellation publishes one;
// the /events firehose and tests subscribe to the feed.
type Notification struct {
	MessageID string
	ThreadID  string
	Priority  queue.Priority
	State     queue.State
}

func (e *Engine) notify(t pubsub.EventType, msg queue.Message) {
	e.feed.Publish(t, Notification{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Priority:  msg.Priority,
		State:     msg.State,
	})
}
