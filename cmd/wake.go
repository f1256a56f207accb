package cmd

import (
	"fmt"

	"cecvol/internal/wol"
	"github.com/spf13/cobra"
)

var wakeBroadcast string

var wakeCmd = &cobra.Command{
	Use:   "wake [mac-address]",
	Short: "Send a Wake-on-LAN magic packet",
	Long: `Broadcast a Wake-on-LAN magic packet. Without an argument the
configured wake.mac_address is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enableToolLogging()

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		mac := cfg.Wake.MACAddress
		if len(args) > 0 {
			mac = args[0]
		}
		if mac == "" {
			return fmt.Errorf("no mac address given and wake.mac_address is not set")
		}
		broadcast := cfg.Wake.Broadcast
		if wakeBroadcast != "" {
			broadcast = wakeBroadcast
		}

		sender, err := wol.NewSender(mac, broadcast)
		if err != nil {
			return err
		}
		if err := sender.Wake(); err != nil {
			return fmt.Errorf("failed to send magic packet: %w", err)
		}

		cmd.Printf("Magic packet sent to %s via %s\n", sender.Target(), broadcast)
		return nil
	},
}

func init() {
	wakeCmd.Flags().StringVar(&wakeBroadcast, "broadcast", "", "Broadcast address and port (overrides wake.broadcast)")
}
