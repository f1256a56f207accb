package cmd

import (
	"fmt"
	"os"

	"cecvol/internal/config"
	"cecvol/internal/daemon"
	"cecvol/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fulfillment daemon",
	Long: `Run the HTTP fulfillment endpoint together with the configured
television backend. A default configuration file is written and the
command exits when --config does not exist yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := config.Save(config.NewDefault(), configPath); err != nil {
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			cmd.Printf("Created default configuration file %s. Please edit it with your settings.\n", configPath)
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = logger.LOG_DEBUG
		}
		logger.Configure(level, cfg.Logging.Format)
		log = logger.New()

		log.Info().
			Str("config_path", configPath).
			Str("backend", cfg.Backend).
			Msg("Starting cecvol daemon")

		d, err := daemon.New(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create daemon")
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		if err := d.Start(); err != nil {
			log.Error().Err(err).Msg("Daemon stopped with error")
			return err
		}
		return nil
	},
}
