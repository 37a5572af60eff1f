// Package logging provides the structured loggers shared across both
// tiers' subsystems, one per-component logger carrying stable fields so
// log lines can be filtered by subsystem and correlated by block/tx hash.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the shared base logger's verbosity, read from config
// at startup.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// For returns a logger scoped to one named subsystem — "producer",
// "executor", "mempool", "rpc", "relayer" and so on.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
