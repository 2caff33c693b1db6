// Package logging bridges logrus into the small component-scoped logger
// interface used throughout the back-ends, following the runner's
// logging.Logger convention of wrapping logrus.FieldLogger rather than
// inventing a bespoke logging abstraction.
package logging

import "github.com/sirupsen/logrus"

// Logger is the interface every package in this module logs through. It is
// satisfied directly by *logrus.Logger and by the *logrus.Entry returned
// from WithField/WithFields, so callers can pass either a root logger or one
// already tagged with a component field.
type Logger interface {
	logrus.FieldLogger
}

// Component returns a Logger tagged with the given component name, mirroring
// the runner's log.WithFields(logrus.Fields{"component": "..."}) convention
// used throughout main.go and pkg/metrics.
func Component(log Logger, name string) Logger {
	return log.WithField("component", name)
}
