// Package sbxlog wires structured logging for all blkar pipelines through
// a single logrus entry point, so callers can inject a discarding logger in
// tests and JSON-mode CLI output is never polluted by chatter on stdout.
package sbxlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a fresh logger at the given level, writing to w. Pipelines
// take a *logrus.Entry (via For), never the bare *logrus.Logger, so that
// component/uid fields are always attached.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		DisableSorting:  false,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// Discard returns a logger that throws everything away, for use by tests
// and by library callers who haven't opted into logging.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// For returns a component-scoped entry carrying fixed fields, mirroring how
// a single base logger is specialized per subsystem.
func For(base logrus.FieldLogger, component string) *logrus.Entry {
	return logrusEntry(base).WithField("component", component)
}

func logrusEntry(base logrus.FieldLogger) *logrus.Entry {
	if e, ok := base.(*logrus.Entry); ok {
		return e
	}
	if l, ok := base.(*logrus.Logger); ok {
		return logrus.NewEntry(l)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
