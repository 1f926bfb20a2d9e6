package datalog

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/itohio/energymon/pkg/sample"
)

// ReadCSV loads the samples of a session file written by CSV.
func ReadCSV(path string) ([]sample.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open session log %s", path)
	}
	defer f.Close()

	samples, err := Decode(f)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read session log %s", path)
	}
	return samples, nil
}

// Decode parses session rows from r. The header row is required.
func Decode(r io.Reader) ([]sample.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, pkgerrors.New("empty file")
	}
	if err != nil {
		return nil, err
	}
	if header[0] != Header[0] || header[1] != Header[1] {
		return nil, pkgerrors.Errorf("unexpected header %v", header)
	}

	var samples []sample.Sample
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "line %d: timestamp", line)
		}
		ma, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "line %d: current", line)
		}
		samples = append(samples, sample.Sample{TimestampMs: ts, CurrentMA: ma})
	}
	return samples, nil
}
