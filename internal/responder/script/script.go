// Package script provides the built-in deterministic responder. It echoes a
// templated answer word by word, which makes it the default provider for
// local runs and the workhorse of the test suite: tests configure the chunk
// list, the inter-chunk delay and the failure mode directly.
package script

import (
	"context"
	"strings"
	"time"

	"github.com/ryaneggz/agent-q/internal/responder"
)

func init() {
	responder.Register(responder.KindScript, func() responder.Responder {
		return New()
	})
}

// Option configures a Responder.
type Option func(*Responder)

// WithChunks overrides the generated fragments for every request.
func WithChunks(chunks []string) Option {
	return func(r *Responder) { r.chunks = chunks }
}

// WithDelay sets the pause before each fragment.
func WithDelay(d time.Duration) Option {
	return func(r *Responder) { r.delay = d }
}

// WithFailure makes every request end in err after emitting its fragments.
func WithFailure(err error) Option {
	return func(r *Responder) { r.failure = err }
}

// WithFinal sets an explicit result value, overriding chunk concatenation.
func WithFinal(final string) Option {
	return func(r *Responder) {
		r.final = final
		r.hasFinal = true
	}
}

// Responder is the deterministic script provider.
type Responder struct {
	chunks   []string
	delay    time.Duration
	failure  error
	final    string
	hasFinal bool
}

// New creates a script responder. Without options it echoes the prompt
// back word by word prefixed with a canned acknowledgement.
func New(opts ...Option) *Responder {
	r := &Responder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the provider identifier.
func (r *Responder) Kind() responder.Kind { return responder.KindScript }

// Stream starts emitting the scripted fragments. The feeding goroutine
// stops at the first context expiry; the stream's Err then reports the
// context error.
func (r *Responder) Stream(ctx context.Context, req responder.Request) (responder.Stream, error) {
	chunks := r.chunks
	if chunks == nil {
		chunks = scriptFor(req.Prompt)
	}

	s := &stream{
		ch:       make(chan string),
		final:    r.final,
		hasFinal: r.hasFinal,
	}

	go func() {
		defer close(s.ch)
		for _, chunk := range chunks {
			if r.delay > 0 {
				select {
				case <-time.After(r.delay):
				case <-ctx.Done():
					s.err = ctx.Err()
					return
				}
			}
			select {
			case s.ch <- chunk:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
		s.err = r.failure
	}()

	return s, nil
}

type stream struct {
	ch       chan string
	err      error
	final    string
	hasFinal bool
}

func (s *stream) Chunks() <-chan string { return s.ch }

func (s *stream) Err() error { return s.err }

func (s *stream) Final() (string, bool) { return s.final, s.hasFinal }

// scriptFor splits a canned echo of the prompt into word fragments, each
// carrying its trailing space.
func scriptFor(prompt string) []string {
	text := "You said: " + prompt
	words := strings.Fields(text)
	chunks := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			chunks[i] = w + " "
		} else {
			chunks[i] = w
		}
	}
	return chunks
}
