package main

import (
	"fmt"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/analysis"
)

func currentSummary(ctl *acquire.Controller) *analysis.Summary {
	s, ok := ctl.Summarize()
	if !ok {
		return nil
	}
	return &s
}

// summaryText formats the status bar summary. nil means no samples yet.
func summaryText(s *analysis.Summary) string {
	if s == nil {
		return "Avg: - | RMS: - | E: -"
	}
	return fmt.Sprintf("Avg: %.1f mA | RMS: %.1f mA | E: %.6f Wh", s.AvgMA, s.RMSMA, s.EnergyWh)
}
