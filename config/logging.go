package config

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from Debug and LogFormat.
func (c *Config) NewLogger(out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	if c.Debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	}
	return logger
}
