// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// New constructs a zerolog.Logger writing to w at level. pretty switches to
// the human-readable console writer. Diagnostics go to stderr in the CLI so
// stdout stays clean for tables and exports.
func New(w io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	logger := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}
	return logger, nil
}

// ForTerminal logs to stderr, pretty when stderr is a terminal.
func ForTerminal(level string) (zerolog.Logger, error) {
	return New(os.Stderr, level, term.IsTerminal(int(os.Stderr.Fd())))
}

// ParseLevel accepts zerolog level names. An empty level means warn.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}
