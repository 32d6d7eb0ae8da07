package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New constructs a logrus logger for the named component. LOG_LEVEL and
// LOG_FORMAT (text|json) come from the environment.
func New(component string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	log.AddHook(&componentHook{component: component})
	return log
}

func parseLevel(raw string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type componentHook struct {
	component string
}

func (h *componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = h.component
	return nil
}
