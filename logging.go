package vblock

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Verbosity selects how chatty backends are about the sectors they serve.
type Verbosity int

const (
	// VerbositySilent only reports warnings such as oversize writes.
	VerbositySilent Verbosity = iota
	// VerbosityWrites adds the block count of every batched write.
	VerbosityWrites
	// VerbositySectors adds one line per sector read or written.
	VerbositySectors
	// VerbosityContent adds the contents of every sector, or a note that it's
	// all zeroes.
	VerbosityContent
)

// Level returns the log level at which a logger must run to show everything
// enabled by this verbosity.
func (v Verbosity) Level() logrus.Level {
	switch {
	case v <= VerbositySilent:
		return logrus.WarnLevel
	case v == VerbosityWrites:
		return logrus.InfoLevel
	case v == VerbositySectors:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// NewLogger creates a text logger writing to `w` whose level follows `verbosity`.
func NewLogger(verbosity Verbosity, w io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(verbosity.Level())
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logrus.NewEntry(logger)
}

// DiscardLogger returns a logger that drops everything. Handy for tests and for
// callers that don't care about diagnostics.
func DiscardLogger() *logrus.Entry {
	return NewLogger(VerbositySilent, io.Discard)
}
