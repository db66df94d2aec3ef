// Package cli provides a responder that spawns an external command per
// prompt and streams its stdout line by line. The command receives the
// prompt as its final argument; a thread id, when present, is exposed via
// the AGENTQ_THREAD_ID environment variable so stateful tools can resume a
// conversation.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/responder"
)

// DefaultCommand is consulted when no command is configured.
const DefaultCommand = "agentq-responder"

func init() {
	responder.Register(responder.KindCLI, func() responder.Responder {
		return New(Config{})
	})
}

// Config holds the spawn settings for the cli provider.
type Config struct {
	// Command is the executable to run. Empty selects DefaultCommand.
	Command string
	// Args are prepended before the prompt argument.
	Args []string
	// WorkDir is the child's working directory. Empty inherits ours.
	WorkDir string
}

// Responder spawns one child process per prompt.
type Responder struct {
	cfg Config
}

// New creates a cli responder.
func New(cfg Config) *Responder {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	return &Responder{cfg: cfg}
}

// Kind returns the provider identifier.
func (r *Responder) Kind() responder.Kind { return responder.KindCLI }

// Stream starts the child and begins relaying stdout lines as chunks. The
// context kills the child on expiry; exec.CommandContext handles the
// signal so abandonment needs no extra bookkeeping.
func (r *Responder) Stream(ctx context.Context, req responder.Request) (responder.Stream, error) {
	args := append(append([]string(nil), r.cfg.Args...), req.Prompt)

	// #nosec G204 -- command comes from operator config, not user input
	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = append(os.Environ(), "AGENTQ_THREAD_ID="+req.ThreadID)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start responder command: %w", err)
	}
	log.Debug(log.CatWorker, "responder command started",
		"command", r.cfg.Command, "pid", cmd.Process.Pid, "message", req.MessageID)

	s := &stream{ch: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case s.ch <- scanner.Text() + "\n":
			case <-ctx.Done():
				s.setErr(ctx.Err())
				close(s.ch)
				go reap(cmd)
				return
			}
		}

		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				s.setErr(ctx.Err())
			} else {
				s.setErr(fmt.Errorf("responder command failed: %w", err))
			}
		} else if err := scanner.Err(); err != nil {
			s.setErr(fmt.Errorf("failed to read responder output: %w", err))
		}
		close(s.ch)
	}()

	return s, nil
}

// reap waits out an abandoned child so it does not linger as a zombie.
func reap(cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		log.Debug(log.CatWorker, "abandoned responder command exited", "error", err)
	}
}

type stream struct {
	ch chan string
	mu sync.Mutex
	// err is set before ch closes
	err error
}

func (s *stream) Chunks() <-chan string { return s.ch }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Final reports no explicit result; callers assemble it from chunks.
func (s *stream) Final() (string, bool) { return "", false }
