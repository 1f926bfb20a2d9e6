package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/energymon/pkg/datalog"
	"github.com/itohio/energymon/pkg/report"
)

// sessionFlags override the energy estimation parameters of a recorded session.
type sessionFlags struct {
	voltageV     float64
	sampleRateHz int
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.voltageV, "voltage", 0, "supply voltage in V (0 = config voltage_v)")
	cmd.Flags().IntVar(&f.sampleRateHz, "rate", 0, "sample rate in Hz (0 = config sample_rate_hz)")
}

func (f *sessionFlags) load(path string) (*report.Session, error) {
	samples, err := datalog.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	s := &report.Session{
		Name:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Samples:      samples,
		VoltageV:     cfg.Acquisition.VoltageV,
		SampleRateHz: cfg.Acquisition.SampleRateHz,
		Generated:    time.Now(),
	}
	if f.voltageV > 0 {
		s.VoltageV = f.voltageV
	}
	if f.sampleRateHz > 0 {
		s.SampleRateHz = f.sampleRateHz
	}
	return s, nil
}

func NewSummarizeCommand() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:     "summarize [session.csv]",
		Short:   "Print the summary of a recorded session",
		GroupID: gFiles,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load(args[0])
			if err != nil {
				return err
			}

			cmd.Println(bold("Session %s:", s.Name))
			if len(s.Samples) == 0 {
				cmd.Println("  No samples recorded.")
				return nil
			}
			cmd.Printf("  Duration: %s\n", bold("%s", s.Duration()))
			for _, line := range summaryLines(s.Summary()) {
				cmd.Println(line)
			}
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func NewExportCommand() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:     "export [session.csv] [report.xlsx|report.pdf]",
		Short:   "Render a recorded session as an Excel workbook or a PDF report",
		GroupID: gFiles,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load(args[0])
			if err != nil {
				return err
			}
			if err := report.Write(args[1], s); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", bold("%s", args[1]))
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}
