// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to out at the given level ("debug", "info",
// "warn", "error"). format "json" selects the JSON formatter; anything else
// gives timestamped text lines.
func New(out io.Writer, level, format string) *log.Logger {
	if out == nil {
		out = os.Stdout
	}
	l := log.New()
	l.SetOutput(out)
	l.SetLevel(ParseLevel(level))
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return l
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
