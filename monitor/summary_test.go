package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/energymon/pkg/analysis"
)

func TestSummaryText(t *testing.T) {
	assert.Equal(t, "Avg: - | RMS: - | E: -", summaryText(nil))

	s := analysis.Summarize([]float64{100, 200, 300}, 5, 50)
	assert.Equal(t, "Avg: 200.0 mA | RMS: 216.0 mA | E: 0.000017 Wh", summaryText(&s))
}
