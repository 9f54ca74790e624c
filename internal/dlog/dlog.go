// Package dlog is the structured logging entry point every other package
// in this repo calls through instead of touching logrus directly: a
// handful of leveled helpers instead of a raw logger.
package dlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug raises the log level to Debug; the CLI wires this to -v.
func SetDebug() {
	base.SetLevel(logrus.DebugLevel)
}

// Fields is a shorthand for the structured context every call site attaches:
// host, peer, path and action are the recurring dimensions for this system.
type Fields = logrus.Fields

// For returns an entry pre-populated with fields, ready for leveled logging.
func For(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// Debugf logs at debug level with no structured fields, for call sites that
// don't have a host/peer/path to attach.
func Debugf(format string, args ...interface{}) {
	base.Debugf(format, args...)
}

// Infof logs at info level with no structured fields.
func Infof(format string, args ...interface{}) {
	base.Infof(format, args...)
}

// Errorf logs at error level with no structured fields.
func Errorf(format string, args ...interface{}) {
	base.Errorf(format, args...)
}
