package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	pkgerrors "github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/sample"
)

const (
	summarySheet = "Summary"
	samplesSheet = "Samples"

	pdfMaxRows = 200
)

// Session is one recorded session ready for export.
type Session struct {
	Name         string
	Samples      []sample.Sample
	VoltageV     float64
	SampleRateHz int
	Generated    time.Time
}

// Summary computes the session metrics.
func (s *Session) Summary() analysis.Summary {
	return analysis.Summarize(sample.Currents(s.Samples), s.VoltageV, s.SampleRateHz)
}

// Duration is the time covered by the sample timestamps.
func (s *Session) Duration() time.Duration {
	if len(s.Samples) < 2 {
		return 0
	}
	return time.Duration(s.Samples[len(s.Samples)-1].TimestampMs-s.Samples[0].TimestampMs) * time.Millisecond
}

// BuildXLSX renders a workbook with a summary sheet and a samples sheet.
func BuildXLSX(s *Session) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(samplesSheet); err != nil {
		return nil, err
	}

	sum := s.Summary()
	rows := [][]interface{}{
		{"Energy Monitor Session"},
		{},
		{"Session", s.Name},
		{"Generated", s.Generated.Format(time.RFC3339)},
		{"Samples", sum.Samples},
		{"Duration (s)", s.Duration().Seconds()},
		{"Voltage (V)", s.VoltageV},
		{"Sample rate (Hz)", s.SampleRateHz},
		{"Average (mA)", sum.AvgMA},
		{"RMS (mA)", sum.RMSMA},
		{"Energy (Wh)", sum.EnergyWh},
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(summarySheet, cell, v)
		}
	}

	_ = f.SetCellValue(samplesSheet, "A1", "timestamp_ms")
	_ = f.SetCellValue(samplesSheet, "B1", "current_mA")
	for i, smp := range s.Samples {
		row := i + 2
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("A%d", row), smp.TimestampMs)
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("B%d", row), smp.CurrentMA)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a one-page summary followed by the first samples of the session.
func BuildPDF(s *Session) ([]byte, error) {
	sum := s.Summary()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Monitor Session")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Session: %s", s.Name))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", s.Generated.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Samples: %d over %.1f s", sum.Samples, s.Duration().Seconds()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Voltage: %.2f V, rate: %d Hz", s.VoltageV, s.SampleRateHz))
	pdf.Ln(8)
	pdf.Cell(0, 6, fmt.Sprintf("Avg: %.1f mA | RMS: %.1f mA | E: %.6f Wh", sum.AvgMA, sum.RMSMA, sum.EnergyWh))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "timestamp_ms", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "current_mA", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, smp := range s.Samples {
		if i == pdfMaxRows {
			pdf.Cell(0, 6, fmt.Sprintf("... %d more samples", len(s.Samples)-pdfMaxRows))
			break
		}
		pdf.CellFormat(50, 6, fmt.Sprintf("%d", smp.TimestampMs), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", smp.CurrentMA), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders s in the format implied by the extension of path (.xlsx or .pdf).
func Write(path string, s *Session) error {
	var build func(*Session) ([]byte, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		build = BuildXLSX
	case ".pdf":
		build = BuildPDF
	default:
		return pkgerrors.Errorf("unsupported report format %q", filepath.Ext(path))
	}

	data, err := build(s)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to render report %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write report %s", path)
	}
	return nil
}
