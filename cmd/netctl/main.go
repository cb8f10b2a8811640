// Command netctl inspects and exercises the kernel network stack from
// userland: `netctl stats` dumps driver and connection-table state,
// `netctl verify` cross-checks a captured frame against the stack's own
// wire codecs, and `netctl demo` boots the stack against a TAP device
// for a live end-to-end run.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "netctl",
		Short: "inspect and exercise the kernel network stack",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a netctl config file")

	root.AddCommand(statsCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(demoCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds a logrus logger per cfg: level from LogLevel, and,
// when LogFile is set, a lumberjack-rotated file output alongside
// stderr.
func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			MaxBackups: cfg.Rotation.MaxBackups,
			Compress:   cfg.Rotation.Compress,
		})
	}
	return log
}
