// Package log wraps logrus behind the small interface the rest of the
// module depends on, so components take a Logger at construction instead
// of reaching for a package-level logger.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every long-lived component accepts.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	WithFields(fields Fields) Logger
}

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]interface{}

type logger struct {
	entry *logrus.Entry
}

// New returns a Logger that writes structured, leveled output to stderr.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logger) WithFields(fields Fields) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
