// Package responder defines the capability the dispatch worker drives: an
// external answer generator that streams incremental text for one prompt.
// Implementations handle the provider-specific details of generation;
// providers register themselves in init() and are selected by name.
package responder

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies a responder provider.
type Kind string

const (
	// KindScript is the deterministic built-in responder.
	KindScript Kind = "script"
	// KindCLI spawns an external command per prompt.
	KindCLI Kind = "cli"
)

// Request is one prompt handed to a responder.
type Request struct {
	// MessageID identifies the message being answered.
	MessageID string
	// Prompt is the user's message text.
	Prompt string
	// ThreadID groups prompts into a conversation; may be empty.
	ThreadID string
}

// Stream is one in-flight generation. Chunks delivers fragments in order
// and is closed when generation ends; Err is valid only after the close.
// Cancellation is cooperative through the context passed to
// Responder.Stream: when it expires the caller stops consuming and the
// implementation winds itself down.
type Stream interface {
	// Chunks returns the fragment channel. Closed on completion, error
	// or cancellation.
	Chunks() <-chan string

	// Err returns the terminal error, nil for a clean completion.
	Err() error

	// Final returns an explicit result value when the provider produced
	// one. ok=false means the caller assembles the result from chunks.
	Final() (string, bool)
}

// Responder generates answers for prompts.
type Responder interface {
	// Kind returns the provider identifier.
	Kind() Kind

	// Stream starts generating an answer. The context carries the
	// per-message processing deadline.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ErrUnknownKind is returned when an unregistered provider is requested.
var ErrUnknownKind = fmt.Errorf("unknown responder kind")

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]func() Responder)
)

// Register records a provider factory. Called from init() functions of
// provider packages.
func Register(kind Kind, factory func() Responder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// New creates a responder of the given kind. Returns ErrUnknownKind when
// the kind is not registered.
func New(kind Kind) (Responder, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return factory(), nil
}

// Registered returns all registered kinds.
func Registered() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// IsRegistered reports whether a kind has a factory.
func IsRegistered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}
