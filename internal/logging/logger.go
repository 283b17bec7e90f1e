// Package logging provides the default leveled logger used across the
// endpoint when the host application does not supply its own.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logging interface every component in this module
// depends on. A host application can provide its own implementation; if
// none is given, NewDefault wires one on top of logrus.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
}

// DefaultLogger wraps a logrus.Logger, giving every endpoint component a
// leveled logger out of the box without forcing a host application to wire
// one in.
type DefaultLogger struct {
	*logrus.Logger
}

// NewDefault creates a logger writing to stderr with text formatting,
// matching the level a caller toggles through ToggleDebug.
func NewDefault() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &DefaultLogger{Logger: l}
}

// ToggleDebug flips the logger between info and debug verbosity, returning
// the new state.
func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *DefaultLogger) Info(v ...interface{})                  { l.Logger.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})  { l.Logger.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                  { l.Logger.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})  { l.Logger.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                 { l.Logger.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) { l.Logger.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                 { l.Logger.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{}) { l.Logger.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                 { l.Logger.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{}) { l.Logger.Fatalf(format, v...) }
