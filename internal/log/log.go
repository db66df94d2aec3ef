// Package log provides structured logging for agent-q.
// It wraps zerolog with category tags and fans every entry out through a
// pubsub broker so in-process consumers (the /events stream, tests) can
// observe log activity.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ryaneggz/agent-q/internal/pubsub"
)

// Category groups related log messages.
type Category string

const (
	CatQueue  Category = "queue"  // Store, scheduler and thread index operations
	CatWorker Category = "worker" // Dispatch loop and responder interaction
	CatStream Category = "stream" // Broadcast streams and SSE pumps
	CatAPI    Category = "api"    // HTTP adapter
	CatConfig Category = "config" // Configuration loading/saving
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(io.Discard)
	broker *pubsub.Broker[string]
)

// Init configures the global logger. Level is one of debug, info, warn,
// error (case-insensitive); anything else falls back to info. Output goes
// to w as zerolog console lines.
func Init(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
	if broker == nil {
		broker = pubsub.NewBroker[string]()
	}
}

// Broker returns the log event broker, or nil if Init has not been called.
func Broker() *pubsub.Broker[string] {
	mu.RLock()
	defer mu.RUnlock()
	return broker
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(zerolog.DebugLevel, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(zerolog.InfoLevel, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(zerolog.WarnLevel, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(zerolog.ErrorLevel, cat, msg, fields...)
}

// ErrorErr logs an error with the error value appended as a field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(zerolog.ErrorLevel, cat, msg, fields...)
}

func write(level zerolog.Level, cat Category, msg string, fields ...any) {
	mu.RLock()
	l := logger
	b := broker
	mu.RUnlock()

	ev := l.WithLevel(level).Str("cat", string(cat))
	for i := 0; i+1 < len(fields); i += 2 {
		ev = ev.Interface(fmt.Sprintf("%v", fields[i]), fields[i+1])
	}
	if len(fields)%2 != 0 {
		ev = ev.Interface(fmt.Sprintf("%v", fields[len(fields)-1]), "<missing>")
	}
	ev.Msg(msg)

	if b != nil {
		entry := fmt.Sprintf("[%s] [%s] %s", level, cat, msg)
		b.Publish(pubsub.LogEvent, entry)
	}
}
