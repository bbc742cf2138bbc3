// Package logging builds Herald's process-wide structured logger,
// generalizing the JSON-formatter/LOG_LEVEL bootstrap used throughout
// the example fleet into a single constructor.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a JSON-formatted logrus logger at the given level name
// ("debug", "info", "warn", "error", "fatal", "off"/"disabled"/"none").
// Unknown or empty level names default to info, matching the teacher's
// env-var bootstrap.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		log.SetLevel(logrus.FatalLevel)
	case "off", "disabled", "none":
		log.SetLevel(logrus.PanicLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// Request builds a request-scoped entry carrying the fields every Herald
// handler attaches to its log lines.
func Request(log *logrus.Logger, requestID, bucket, method, backendProtocol string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"request_id":       requestID,
		"bucket":           bucket,
		"method":           method,
		"backend_protocol": backendProtocol,
	})
}
