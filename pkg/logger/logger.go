// Package logger provides the structured logger shared by all gateway
// components. It wraps logrus so call sites can chain fields:
//
//	log.WithField("flow", name).WithError(err).Warn("flow start failed")
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls the root logger.
type Config struct {
	Level  string    `mapstructure:"level"`
	Format string    `mapstructure:"format"` // "text" or "json"
	Output io.Writer `mapstructure:"-"`
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New creates a root logger from the provided configuration. Unknown levels
// fall back to info.
func New(cfg Config) *Logger {
	base := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// NewDefault creates an info-level text logger tagged with the component name.
func NewDefault(name string) *Logger {
	return New(Config{Level: "info"}).Named(name)
}

// NewDiscard returns a logger that drops everything. Useful in tests.
func NewDiscard() *Logger {
	return New(Config{Level: "panic", Output: io.Discard})
}

// Named returns a child logger whose entries carry the component name.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return NewDefault(name)
	}
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

// Level reports the effective level of the underlying logger.
func (l *Logger) Level() logrus.Level {
	return l.Entry.Logger.GetLevel()
}
