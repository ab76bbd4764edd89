// Package cli provides the startup steps shared by the server's transports.
package cli

import (
	"io"
	"os"

	"github.com/joho/godotenv"

	"expensemcp/internal/amqp"
	"expensemcp/internal/config"
	"expensemcp/internal/log"
	"expensemcp/internal/services"
	"expensemcp/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the application logger for cfg and makes it the default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:     cfg.SlogLevel(),
		Component: log.ComponentApp,
		Output:    logOutput(cfg.Transport),
	})
	log.SetDefault(logger)
	return logger
}

// logOutput keeps stdout free for protocol frames on the stdio transport.
func logOutput(transport string) io.Writer {
	if transport == config.TransportStdio {
		return os.Stderr
	}
	return os.Stdout
}

// ValidateConfig exits the process when cfg is invalid.
func ValidateConfig(logger *log.Logger, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
}

// InitStore creates the data directory and schema and opens the repository.
// Any failure is fatal: no request may be served without a store.
func InitStore(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize expense store", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("Expense store ready", "path", dbPath)
	return repo
}

// InitPublisher connects the optional event publisher. It returns nil when
// AMQP_URL is unset or the broker is unreachable; expenses are still stored.
func InitPublisher(logger *log.Logger, cfg *config.Config) services.EventPublisher {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, expense events disabled")
		return nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP broker, expense events disabled",
			log.FieldError, err,
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
		return nil
	}

	logger.Info("Expense events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}
