package cmd

import (
	"fmt"
	"os"

	"cecvol/internal/config"
	"cecvol/internal/logger"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	log        = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "cecvol",
	Short: "cecvol - remote control service for LG televisions",
	Long: `cecvol accepts smart home fulfillment requests and turns them into
television commands, either over the LG network control protocol or over
the HDMI-CEC bus.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel("debug")
		}
		log = logger.New()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cecvol.yml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tvCmd)
	rootCmd.AddCommand(cecCmd)
	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads --config; tools fall back to defaults when the file is missing.
func loadConfig(allowMissing bool) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) && allowMissing {
		log.Debug().Str("config_path", configPath).Msg("Config file not found, using defaults")
		return config.NewDefault(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// enableToolLogging turns on console output for one-shot commands
func enableToolLogging() {
	if !verbose {
		logger.SetSilentMode(false)
		logger.SetLevel("warn")
	}
	log = logger.New()
}
