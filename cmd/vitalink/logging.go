package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/vitalink/pkg/config"
)

// configureLogger creates a logger from the config file level, with the
// --log-level flag taking precedence when set. Returns an error if the
// flag value is not a recognized level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level in config: %s", cfg.LogLevel)
	}

	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		logLevel, err = logrus.ParseLevel(flagLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", flagLevel)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
