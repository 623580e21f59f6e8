package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"roomchat/internal/app"
	"roomchat/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// Signal handling ensures graceful shutdown in production environments
func run(args []string) error {
	fs := flag.NewFlagSet("roomchat", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("ROOMCHAT_CONFIG_FILE"), "path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// STEP 1: Load configuration with precedence (file > env > .env > defaults)
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cfg.Log.Env, cfg.Log.Level, nil)

	// STEP 2: Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// STEP 3: Create and start the application
	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	// STEP 4: Wait for shutdown signal or server failure
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-application.Done():
		if ok {
			serveErr = fmt.Errorf("application error: %w", err)
		}
	}

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("shutdown error: %w", err))
	}
	return serveErr
}
