package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter maps log writes to testing.T.Log so that logging only
// shows up for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus logger that writes through testing.T.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry returns a debug-level logrus entry for tests.
func NewTestEntry(t testing.TB) *logrus.Entry {
	logger := NewTestLogger(t, logrus.DebugLevel)
	return logrus.NewEntry(logger)
}
