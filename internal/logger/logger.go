// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init sets the level (debug, info, warn, error) and format (text, json) of the standard logger
func Init(level string, format string) error {
	l, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log.SetLevel(l)

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}

	return nil
}

// SetOutput redirects the standard logger
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Participant returns an entry tagged with the participant id
func Participant(id string) *log.Entry {
	return log.WithField("participant", id)
}
