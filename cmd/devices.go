package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/icco/chordcoach/internal/audio"
	"github.com/icco/chordcoach/internal/input"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List MIDI inputs and outputs",
	Long: `List the MIDI input devices the engine can listen to and the MIDI output
ports it can play through.

With --monitor, connect to an input and print the notes it sends.

Example:
  chordcoach devices --monitor "Keystation"
`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
)

func init() {
	devicesCmd.Flags().String("monitor", "", "print notes from this input, by id or name")
	devicesCmd.Flags().String("virtual", "", "also create a virtual MIDI input port with this name")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	closeLog, err := initLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()

	out := cmd.OutOrStdout()
	midi := openMIDI(cfg, logger)
	if midi == nil {
		return input.ErrUnsupported
	}
	defer midi.Close()

	devs, err := midi.Devices()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, headerStyle.Render("MIDI inputs"))
	if len(devs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("  none"))
	}
	for _, d := range devs {
		line := fmt.Sprintf("  %-4s %s", d.ID, d.Name)
		if d.Virtual {
			line += dimStyle.Render(" (virtual)")
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out, headerStyle.Render("MIDI outputs"))
	outs := audio.OutPorts()
	if len(outs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("  none"))
	}
	for _, name := range outs {
		fmt.Fprintf(out, "  %s\n", name)
	}

	target, _ := cmd.Flags().GetString("monitor")
	if target == "" {
		return nil
	}
	d, ok := input.FindDevice(devs, target)
	if !ok {
		return fmt.Errorf("%q: %w", target, input.ErrDeviceNotFound)
	}

	// Handlers run on driver goroutines; a channel serialises the printing.
	events := make(chan input.Event, 64)
	midi.OnMessage(func(raw []byte) {
		if e, ok := input.Decode(raw); ok {
			select {
			case events <- e:
			default:
			}
		}
	})
	if err := midi.Connect(d.ID); err != nil {
		return err
	}
	defer midi.Disconnect()
	fmt.Fprintf(out, "\nMonitoring %s, press Ctrl+C to stop.\n", d.Name)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	for {
		select {
		case e := <-events:
			fmt.Fprintln(out, noteStyle.Render(e.String()))
		case <-sig:
			return nil
		}
	}
}
