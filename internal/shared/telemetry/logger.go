package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})
	return l
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel adjusts the minimum level; unknown names keep the current level.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return
	}
	logger.SetLevel(parsed)
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Info(msg)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Warn(msg)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Error(msg)
}
