package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	defaultLevel = logrus.ErrorLevel
	serviceName  = "notification-relay"
)

var Logger logrus.FieldLogger

func init() {
	Logger = newLogger(os.Getenv("LOG_LEVEL"))
}

func newLogger(level string) logrus.FieldLogger {
	l := logrus.New()
	l.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	}
	l.Out = os.Stdout

	lvl, err := resolveLogLevel(level)
	l.Level = lvl

	if err != nil {
		l.Errorf("an error occurred resolving the log level: %s", err)
	}

	return l.WithField("service", serviceName)
}

// ForComponent returns a logger tagged with the name of the subsystem
// producing the entries, e.g. "worker" or "reconciler".
func ForComponent(name string) logrus.FieldLogger {
	return Logger.WithField("component", name)
}

func resolveLogLevel(envLvl string) (logrus.Level, error) {
	if envLvl == "" {
		return defaultLevel, nil
	}

	lvl, err := logrus.ParseLevel(envLvl)
	if err != nil {
		return defaultLevel, err
	}

	return lvl, nil
}
