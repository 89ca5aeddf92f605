package config

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies LogLevel and LogFormat to the standard logrus logger.
func (c Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
