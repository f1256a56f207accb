package cmd

import (
	"fmt"

	"cecvol/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Generate or validate cecvol configuration files.`,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		if err := config.Save(config.NewDefault(), path); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", path)
		cmd.Println("Please edit the file with your television and backend settings.")
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", path)
		cmd.Printf("Backend: %s\n", cfg.Backend)
		switch cfg.Backend {
		case config.BackendLGIP:
			cmd.Printf("  television: %s:%d (keys in %s)\n", cfg.LG.Host, cfg.LG.Port, cfg.Keys.Backend)
		case config.BackendCEC:
			cmd.Printf("  adapter: %s (fake=%t, volume target %d)\n", cfg.CEC.Device, cfg.CEC.Fake, cfg.CEC.VolumeTarget)
		}
		cmd.Printf("Listening on: %s\n", cfg.Server.Address)
		cmd.Printf("Journal: %t, MQTT: %t\n", cfg.Database.Enabled, cfg.MQTT.Enabled)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGenerateCmd)
	configCmd.AddCommand(configValidateCmd)
}
