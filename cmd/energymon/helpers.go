package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/config"
	"github.com/itohio/energymon/pkg/datalog"
	"github.com/itohio/energymon/pkg/link"
)

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// sourceFlags are the link overrides shared by commands that talk to the device.
type sourceFlags struct {
	mock bool
	port string
	baud int
}

func (f *sourceFlags) apply(c *config.Config) {
	if f.port != "" {
		c.Serial.Port = f.port
	}
	if f.baud > 0 {
		c.Serial.BaudRate = f.baud
	}
}

func (f *sourceFlags) source(c *config.Config) link.Source {
	if f.mock {
		return link.NewMock(&c.Mock)
	}
	return link.New(c.Serial.Port, c.Serial.BaudRate, c.Serial.BufferSize,
		link.WithTimeouts(c.Serial.ReadTimeout, c.Serial.JoinTimeout))
}

func newController(c *config.Config, f *sourceFlags) *acquire.Controller {
	f.apply(c)
	return acquire.New(c, f.source(c), datalog.NewCSV(c.Logging.Dir))
}

func summaryLines(s analysis.Summary) []string {
	return []string{
		fmt.Sprintf("  Samples: %s", bold("%d", s.Samples)),
		fmt.Sprintf("  Average: %s", color.New(color.Bold, color.FgGreen).Sprintf("%.1f mA", s.AvgMA)),
		fmt.Sprintf("  RMS: %s", bold("%.1f mA", s.RMSMA)),
		fmt.Sprintf("  Energy: %s", color.New(color.Bold, color.FgYellow).Sprintf("%.6f Wh", s.EnergyWh)),
	}
}
