package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/voxflux/internal/config"
	configstore "github.com/nupi-ai/voxflux/internal/config/store"
	"github.com/nupi-ai/voxflux/internal/daemon"
	"github.com/nupi-ai/voxflux/internal/logging"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API and set up the configured devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	cmd.Flags().String("listen", "", "Override the listen address")
	cmd.Flags().Bool("prompt-token", false, "Prompt for the token of every device configured without one")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	instance := instanceFlag(cmd)
	paths := config.GetInstancePaths(instance)

	cfg, err := loadConfig(cmd, paths)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if prompt, _ := cmd.Flags().GetBool("prompt-token"); prompt {
		if err := promptMissingTokens(cmd, &cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := config.EnsureInstanceDirs(instance); err != nil {
		return fmt.Errorf("failed to prepare instance directories: %w", err)
	}
	logPath := paths.LogFile
	if cfg.LogFile != "" {
		logPath = config.ExpandPath(cfg.LogFile)
	}
	logger, closeLog, err := logging.Setup(cfg.LogLevel, logPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := configstore.Open(configstore.Options{InstanceName: instance})
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	defer store.Close()

	d, err := daemon.New(daemon.Options{Config: cfg, Store: store, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("instance", instance).Str("log_file", logPath).Msg("voxflux starting")
	return d.Run(ctx)
}
