package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"netkern/pkg/e1000"
	"netkern/pkg/stack"
)

// demoCmd boots the full stack against a TAP-bridged bus so it can
// exchange real ARP and UDP traffic with the host, instead of the
// purely in-process SimBus the test suite and `nc` use.
func demoCmd() *cobra.Command {
	var tapName string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "boot the stack against a TAP device for a live end-to-end run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if tapName == "" {
				tapName = cfg.Demo.TapInterface
			}
			log := newLogger(cfg)

			mac := [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
			bus, err := e1000.NewTapBus(mac, tapName)
			if err != nil {
				return fmt.Errorf("opening tap device: %w", err)
			}
			defer bus.Close()

			ns, err := stack.Boot(bus, log.WithField("component", "stack"))
			if err != nil {
				return fmt.Errorf("booting stack: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			done := make(chan struct{})
			go func() {
				defer close(done)
				buf := make([]byte, 2048)
				for {
					n, err := bus.ReadFrame(buf)
					if err != nil {
						log.WithError(err).Warn("tap read failed, stopping bridge")
						return
					}
					ns.Driver.DeliverFrame(buf[:n])
				}
			}()

			log.WithField("mac", ns.LocalMAC().String()).
				WithField("ip", ns.LocalIP().String()).
				Info("demo running, press ctrl-c to stop")

			select {
			case <-sigCh:
				log.Info("shutting down")
			case <-done:
				log.Warn("tap bridge exited")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tapName, "tap", "", "TAP interface name (empty lets the OS pick one)")
	return cmd
}
