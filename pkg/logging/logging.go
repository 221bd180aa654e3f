// Package logging is a thin wrapper around logrus, grounded on OPA's
// log package, trimmed to the levels this toolchain's CLI and compiler
// diagnostics actually use.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields.
type Fields = logrus.Fields

// Logger is the interface consumed by the compiler and VM debugger for
// diagnostic output; never by the direct matcher or lexer/parser,
// which are pure functions over their inputs.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})
	Info(...interface{})
	Infof(string, ...interface{})
	Warn(...interface{})
	Warnf(string, ...interface{})
	Error(...interface{})
	Errorf(string, ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(Fields) Logger

	SetLevel(level string) error
	SetOutput(io.Writer)
}

type logger struct {
	entry *logrus.Entry
}

// New creates a standalone logger with its own logrus instance.
func New() Logger {
	l := logrus.New()
	return logger{entry: logrus.NewEntry(l)}
}

func (l logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l logger) WithField(key string, value interface{}) Logger {
	return logger{entry: l.entry.WithField(key, value)}
}

func (l logger) WithFields(fields Fields) Logger {
	return logger{entry: l.entry.WithFields(fields)}
}

func (l logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// NoOp returns a Logger that discards everything, for callers (like
// the CLI when -p is not given) that never want diagnostic output.
func NoOp() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logger{entry: logrus.NewEntry(l)}
}
