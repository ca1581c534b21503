// Package telemetry owns the runtime's two observability surfaces:
// structured logging and request-timing metrics.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger once at process
// start, per RuntimeConfig.LogLevel, mirroring cmd/root.go's
// logrus.ParseLevel/logrus.SetLevel sequence.
func SetupLogging(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.StandardLogger()
	log.SetLevel(parsed)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// Component returns a *logrus.Entry pre-tagged with component, the
// convention every package under internal/ uses so log lines can be
// filtered by subsystem.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
