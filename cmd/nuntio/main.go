package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/nuntio/internal/app"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
)

func main() {
	configPath := flag.String("config", "nuntio.toml", "Path to TOML configuration file")
	port := flag.Int("port", 0, "Override server port")
	autoStart := flag.Bool("auto-start", false, "Start automation immediately after boot")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	version := common.LoadVersionFromFile()
	if *showVersion {
		fmt.Println(common.GetFullVersion())
		return
	}

	// A missing default config file is fine; explicit paths must exist
	path := *configPath
	if path == "nuntio.toml" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *port > 0 {
		config.Server.Port = *port
	}

	logger := common.InitLogger(config)
	common.PrintBanner(version)

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("log_file", common.GetLogFilePath(logger)).
		Msg("Starting nuntio")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- application.Server.Start()
	}()

	if *autoStart || config.Scheduler.Enabled {
		if err := application.Coordinator.Start(interfaces.StartOptions{}); err != nil {
			logger.Error().Err(err).Msg("Automation failed to start, continuing with control API only")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}

	logger.Info().Msg("Shutdown complete")
}
