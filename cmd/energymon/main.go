package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/energymon/pkg/config"
)

var (
	logLevel   = "info"
	configPath = "energymon.yaml"

	// cfg is loaded before every command runs.
	cfg = config.Default()
)

var (
	gAcquisition  = "Acquisition:"
	gFiles        = "Session files:"
	commandGroups = []string{
		gAcquisition,
		gFiles,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "energymon",
		Short: "energymon records current draw from an ACS712 sensor behind an Arduino",
		Long: `energymon records current draw from an ACS712 sensor behind an Arduino.

Samples arrive over a serial link as "<timestamp_ms>,<current_mA>" lines, are calibrated,
logged to a CSV file per session and summarized as average, RMS and estimated energy.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded

			if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
				logLevel = cfg.Logging.Level
			}
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", "energymon.yaml", "config file path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewVersionCommand(),
		NewRunCommand(),
		NewServeCommand(),
		NewPortsCommand(),
		NewSummarizeCommand(),
		NewExportCommand(),
	)

	return cmd
}
