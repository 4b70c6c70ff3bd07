package main

import (
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/internal/server"
	"os"
)

// main prepares the config and runs the metering HTTP server.
func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	entry := logger.WithField("service", "metering")

	// Prepare the config
	cfg, err := server.Setup(entry)
	if err != nil {
		entry.WithError(err).Fatal("Failed to initialize server configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		entry.WithError(err).Warn("Invalid log level, falling back to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Run the HTTP server with the given config
	if err = server.Run(cfg, entry); err != nil {
		entry.WithError(err).Fatal("Failed to run HTTP server")
	}

	entry.Info("HTTP server stopped")
}
