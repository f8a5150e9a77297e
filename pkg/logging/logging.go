// Package logging provides the structured logger used throughout the
// cache core and orchestrator.
package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a structured set of key-value pairs attached to a log line.
type Fields map[string]interface{}

// Logger is the logging interface accepted by the client and cache
// manager. A Logger must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
	WithFields(fields Fields) Logger
}

// logrusLogger adapts *logrus.Entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger backed by logrus, writing JSON lines to stdout.
func New() Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

// NewWithLevel returns a Logger at the given logrus level.
func NewWithLevel(level logrus.Level) Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(level)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) Debug(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, err error, fields Fields) {
	e := l.entry.WithFields(logrus.Fields(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// noop is a Logger that discards everything. It is the default for
// library consumers who do not supply one.
type noop struct{}

// NewNoop returns a Logger that discards all output.
func NewNoop() Logger { return noop{} }

func (noop) Debug(string, Fields)            {}
func (noop) Info(string, Fields)             {}
func (noop) Warn(string, Fields)             {}
func (noop) Error(string, error, Fields)     {}
func (noop) WithFields(Fields) Logger        { return noop{} }

type ctxKey struct{}

// Into stores a Logger in ctx for retrieval by downstream collaborators
// that only receive a context.Context.
func Into(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From retrieves the Logger stored in ctx, or a no-op Logger if none.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return NewNoop()
}
