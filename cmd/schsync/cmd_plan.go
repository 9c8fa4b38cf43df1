package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"schsync/internal/host/memhost"
	"schsync/internal/ir"
	"schsync/internal/reconcile"
	"schsync/internal/schematicmap"
	"schsync/internal/store"
)

var planVerbose bool

var planCmd = &cobra.Command{
	Use:   "plan FILE",
	Short: "Apply a description to an empty in-memory document and print the result",
	Long: `Runs the full reconciliation against an in-memory document. Devices are
synthesized from the description: every pin a connection names exists,
spaced 10 units apart along x.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVarP(&planVerbose, "verbose", "v", false, "print progress to stderr")
}

func runPlan(cmd *cobra.Command, args []string) error {
	d, _, err := ir.ReadFile(args[0])
	if err != nil {
		return describeFault(cmd.ErrOrStderr(), err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := memhost.New(planDevices(d)...)
	engine := reconcile.New(h, schematicmap.NewStore(store.NewMemoryKV(), log), reconcile.WithLogger(log))

	var progress reconcile.ProgressFunc
	if planVerbose {
		progress = func(p int) { fmt.Fprintf(cmd.ErrOrStderr(), "progress %d%%\n", p) }
	}
	res, err := engine.ApplyDescription(cmd.Context(), d, progress)
	if err != nil {
		return describeFault(cmd.ErrOrStderr(), err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// planDevices builds one device per deviceUuid with the pins the
// description's connections reference on components of that device.
func planDevices(d *ir.Description) []memhost.Device {
	deviceOf := map[string]string{}
	order := []string{}
	pins := map[string][]memhost.DevicePin{}
	for _, c := range d.Components {
		deviceOf[c.ID] = c.DeviceUUID
		if _, ok := pins[c.DeviceUUID]; !ok {
			pins[c.DeviceUUID] = nil
			order = append(order, c.DeviceUUID)
		}
	}

	seen := map[string]bool{}
	add := func(ep ir.Endpoint) {
		dev, ok := deviceOf[ep.ComponentID]
		if !ok {
			return
		}
		key := dev + "\x00" + ep.PinNumber + "\x00" + ep.PinName
		if seen[key] {
			return
		}
		seen[key] = true
		n := len(pins[dev])
		pin := memhost.DevicePin{Number: ep.PinNumber, Name: ep.PinName, DX: float64(n) * 10}
		if pin.Number == "" {
			pin.Number = "P" + strconv.Itoa(n+1)
		}
		pins[dev] = append(pins[dev], pin)
	}
	for _, c := range d.Connections {
		add(c.From)
		add(c.To)
	}

	devices := make([]memhost.Device, 0, len(order))
	for _, uuid := range order {
		devices = append(devices, memhost.Device{UUID: uuid, LibraryUUID: "plan", Designator: "U?", Pins: pins[uuid]})
	}
	return devices
}
