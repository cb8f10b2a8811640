package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"netkern/pkg/conntable"
	"netkern/pkg/e1000"
	"netkern/pkg/stack"
)

// statSnapshot is the JSON/YAML-marshalable shape netctl stats prints.
type statSnapshot struct {
	Driver      e1000.Stats `json:"driver"`
	PagesFree   int         `json:"pages_free"`
	Connections int         `json:"connections"`
}

// pageAvailabler is implemented by hostos.FreeListAllocator, the only
// PageAllocator stack.Boot constructs; the interface stack.NetStack.Pages
// is typed as doesn't expose Available itself.
type pageAvailabler interface {
	Available() int
}

func statsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "boot the stack against a SimBus and dump its E1000 counters, free-page count and open-connection count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			bus, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56})
			if err != nil {
				return fmt.Errorf("opening bus: %w", err)
			}
			defer bus.Close()

			ns, err := stack.Boot(bus, log.WithField("component", "stack"))
			if err != nil {
				return fmt.Errorf("booting stack: %w", err)
			}

			snap := statSnapshot{Driver: ns.Driver.Stats}
			ns.Table.ForEach(func(int, *conntable.Connection) { snap.Connections++ })
			if avail, ok := ns.Pages.(pageAvailabler); ok {
				snap.PagesFree = avail.Available()
			}

			switch format {
			case "json":
				b, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
			case "yaml":
				b, err := yamlMarshal(snap)
				if err != nil {
					return err
				}
				fmt.Println(b)
			default:
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}
