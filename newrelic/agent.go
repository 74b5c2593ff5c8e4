package newrelic

import (
	"io"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"inviqa/notification-relay/log"
)

const (
	appName         = "notification-relay"
	shutdownTimeout = time.Second * 10

	envKeyLicense     = "NEW_RELIC_LICENSE_KEY"
	envKeyNewRelicEnv = "NEW_RELIC_ENV"
	envKeyLogLevel    = "NEW_RELIC_LOG_LEVEL"
)

// StartAgent connects to New Relic when a licence key is configured. Without
// one it returns a nil application; transactions started from it are no-ops.
func StartAgent() (*newrelic.Application, func()) {
	if os.Getenv(envKeyLicense) == "" {
		log.Logger.Info("no New Relic licence key configured, APM is disabled")
		return nil, func() {}
	}

	app, err := newrelic.NewApplication(agentOptions(os.Getenv(envKeyNewRelicEnv), os.Getenv(envKeyLogLevel))...)
	if err != nil {
		log.Logger.WithError(err).Fatal("error starting New Relic agent")
	}

	return app, func() {
		log.Logger.Info("shutting down newrelic agent")
		app.Shutdown(shutdownTimeout)
	}
}

func agentOptions(env, logLevel string) []newrelic.ConfigOption {
	return []newrelic.ConfigOption{
		newrelic.ConfigAppName(appName),
		newrelic.ConfigFromEnvironment(),
		agentLogger(logLevel),
		func(cfg *newrelic.Config) {
			cfg.Labels = map[string]string{"env": env}
			// payloads carry message bodies and recipient tokens
			cfg.Attributes.Exclude = append(cfg.Attributes.Exclude, "request.parameters.*")
		},
	}
}

func agentLogger(level string) newrelic.ConfigOption {
	if level == "debug" {
		return newrelic.ConfigDebugLogger(logWriter())
	}
	return newrelic.ConfigInfoLogger(logWriter())
}

// logWriter routes agent output through the service logger when it exposes a
// writer.
func logWriter() io.Writer {
	if entry, ok := log.Logger.(*logrus.Entry); ok {
		return entry.Writer()
	}
	return os.Stdout
}
