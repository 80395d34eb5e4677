// Command petakeu serves the regional fiscal dashboard API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"petakeu/internal/app"
	"petakeu/internal/config"
	"petakeu/internal/infrastructure"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (defaults to the first config.yaml found)")
	envFile := flag.String("env", ".env", "path to a .env file; a missing file is skipped")
	flag.Parse()

	cfg, err := loadConfig(*configFile, *envFile)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig falls back to the default config file location but always
// honours envFile
func loadConfig(configFile, envFile string) (*config.Config, error) {
	if configFile == "" {
		configFile = config.FilePath()
	}
	return config.LoadFrom(configFile, envFile)
}
