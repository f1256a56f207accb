package cmd

import (
	"fmt"
	"strings"

	"cecvol/internal/config"
	"cecvol/internal/daemon"
	"cecvol/internal/lgip"
	"github.com/spf13/cobra"
)

var tvHost string

var tvCmd = &cobra.Command{
	Use:   "tv",
	Short: "Talk to an LG television over network control",
	Long: `Send network control instructions to an LG television on port 9761.
The session key is cached in the configured key store, so pairing only
happens on the first run or after "tv pair".`,
}

var tvSendCmd = &cobra.Command{
	Use:   "send [instruction...]",
	Short: "Send one instruction and print the reply",
	Long: `Send one instruction such as "VOLUME_MUTE on", "KEY_ACTION volumeup"
or "INPUT_SELECT hdmi2" and print the television's reply.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLGBackend(func(backend *lgip.Backend) error {
			instruction := strings.Join(args, " ")
			log.Info().
				Str("address", backend.Client().Address()).
				Str("instruction", instruction).
				Msg("Sending instruction")

			reply, err := backend.Raw(instruction)
			if err != nil {
				return fmt.Errorf("instruction failed: %w", err)
			}
			cmd.Println(reply)
			return nil
		})
	},
}

var tvPairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair again with lg.keycode and store the session key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLGBackend(func(backend *lgip.Backend) error {
			client := backend.Client()
			if err := client.Pair(); err != nil {
				return fmt.Errorf("pairing failed: %w", err)
			}
			cmd.Printf("Paired with %s (%s)\n", client.Address(), client.PairingState())
			return nil
		})
	},
}

func withLGBackend(fn func(*lgip.Backend) error) error {
	enableToolLogging()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if tvHost != "" {
		cfg.LG.Host = tvHost
	}
	cfg.Backend = config.BackendLGIP

	db, err := daemon.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	keys, err := daemon.NewKeyStore(cfg, db)
	if err != nil {
		return err
	}
	backend, err := daemon.NewLGBackend(cfg, keys)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(backend)
}

func init() {
	tvCmd.PersistentFlags().StringVar(&tvHost, "host", "", "Television host (overrides lg.host)")

	tvCmd.AddCommand(tvSendCmd)
	tvCmd.AddCommand(tvPairCmd)
}
