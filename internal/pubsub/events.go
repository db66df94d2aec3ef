// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType labels the kind of change an event describes.
type EventType string

const (
	SubmittedEvent EventType = "submitted"
	StartedEvent   EventType = "started"
	FinishedEvent  EventType = "finished"
	CancelledEvent EventType = "cancelled"
	LogEvent       EventType = "log"
)

// Event is a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
