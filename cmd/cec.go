package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"cecvol/internal/cec"
	"cecvol/internal/daemon"
	"cecvol/internal/events"
	"github.com/spf13/cobra"
)

var (
	cecDevice string
	cecFake   bool
	cecJSON   bool
)

var cecCmd = &cobra.Command{
	Use:   "cec",
	Short: "Inspect and drive the HDMI-CEC bus",
	Long: `Low-level access to the HDMI-CEC bus through the kernel CEC device.
Useful to check which logical addresses answer and what the television
sends before running the daemon with the cec backend.`,
}

var cecPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll every logical address and list the ones present",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, driver *cec.Driver) error {
			present, err := driver.PollAll()
			if err != nil {
				return fmt.Errorf("poll failed: %w", err)
			}

			addrs := make([]cec.LogicalAddress, 0, len(present))
			for addr := range present {
				addrs = append(addrs, addr)
			}
			sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

			for _, addr := range addrs {
				state := "absent"
				if present[addr] {
					state = "present"
				}
				cmd.Printf("%2d %-10s %s\n", uint8(addr), addr, state)
			}
			return nil
		})
	},
}

var cecSendCmd = &cobra.Command{
	Use:   "send [destination] [opcode] [operands...]",
	Short: "Transmit one frame",
	Long: `Transmit one frame from the adapter's logical address. Destination
is a logical address 0-15, opcode and operands are hex bytes, for example
"cec send 0 36" puts the television in standby. Omit the opcode to poll.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := strconv.ParseUint(args[0], 0, 4)
		if err != nil {
			return fmt.Errorf("invalid destination %q: %w", args[0], err)
		}
		raw := make([]byte, 0, len(args)-1)
		for _, arg := range args[1:] {
			b, err := strconv.ParseUint(arg, 16, 8)
			if err != nil {
				return fmt.Errorf("invalid byte %q: %w", arg, err)
			}
			raw = append(raw, byte(b))
		}

		return withDriver(func(ctx context.Context, driver *cec.Driver) error {
			frame := cec.PollFrame(driver.Handle().LogicalAddress, cec.LogicalAddress(dst))
			if len(raw) > 0 {
				frame = cec.NewFrame(frame.Source, frame.Destination, cec.Opcode(raw[0]), raw[1:]...)
			}
			if err := driver.SendFrame(frame); err != nil {
				return err
			}
			cmd.Printf("Sent %s\n", frame)
			return nil
		})
	},
}

var cecMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print received frames until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDriver(func(ctx context.Context, driver *cec.Driver) error {
			cmd.Printf("Listening as %s, press Ctrl-C to stop\n", driver.Handle().LogicalAddress)
			for {
				select {
				case <-ctx.Done():
					return printObservations(cmd, driver)
				case f, ok := <-driver.Frames():
					if !ok {
						return nil
					}
					if cecJSON {
						data, _ := json.Marshal(events.NewFrameEvent(f))
						cmd.Println(string(data))
					} else {
						cmd.Println(f.String())
					}
				}
			}
		})
	},
}

func printObservations(cmd *cobra.Command, driver *cec.Driver) error {
	for _, o := range driver.Observations() {
		cmd.Printf("%-10s physical=%s vendor=%06x name=%q power=%s frames=%d\n",
			o.Name, o.PhysicalAddress, o.VendorID, o.OSDName, o.PowerStatus, o.Frames)
	}
	return nil
}

func withDriver(fn func(context.Context, *cec.Driver) error) error {
	enableToolLogging()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if cecDevice != "" {
		cfg.CEC.Device = cecDevice
	}
	if cecFake {
		cfg.CEC.Fake = true
	}

	driver, err := daemon.OpenCECDriver(cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, driver)
}

func init() {
	cecCmd.PersistentFlags().StringVar(&cecDevice, "device", "", "CEC device node (overrides cec.device)")
	cecCmd.PersistentFlags().BoolVar(&cecFake, "fake", false, "Log frames instead of using an adapter")
	cecMonitorCmd.Flags().BoolVar(&cecJSON, "json", false, "Print frames as JSON")

	cecCmd.AddCommand(cecPollCmd)
	cecCmd.AddCommand(cecSendCmd)
	cecCmd.AddCommand(cecMonitorCmd)
}
