package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	mu   sync.RWMutex
	root = newRoot(os.Stderr)
)

func newRoot(w io.Writer) zerolog.Logger {
	var out io.Writer = w
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05.000Z"}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// SetLevel sets the global log level from a string (debug, info, warn, error).
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// SetOutput redirects all loggers to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = newRoot(w)
}

// New returns a tagged logger. The tag shows up as a structured field on
// every event, so log output can be filtered per subsystem.
func New(tag string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("tag", tag).Logger()
}
