package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/afero"

	"github.com/beamhq/beam/cmd"
	"github.com/beamhq/beam/pkg/environment"
	"github.com/beamhq/beam/pkg/logging"
	"github.com/beamhq/beam/pkg/settings"
)

func main() {
	fs := afero.NewOsFs()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.GetLogger()

	env, err := environment.NewEnvironment(fs, nil)
	if err != nil {
		logger.Error("failed to set up environment", "error", err)
		os.Exit(1)
	}

	mgr, err := settings.NewManager(logger)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	setupSignalHandler(cancel, logger)

	rootCmd := cmd.NewRootCommand(fs, ctx, env, mgr, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setupSignalHandler cancels the root context on SIGINT/SIGTERM so both
// processes shut down gracefully.
func setupSignalHandler(cancel context.CancelFunc, logger *logging.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Debug("received shutdown signal", "signal", sig)
		cancel()
	}()
}
