package datalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/energymon/pkg/sample"
)

func TestReadCSV_RoundTrip(t *testing.T) {
	l := NewCSV(t.TempDir())
	require.NoError(t, l.Start("dev"))
	require.NoError(t, l.Log(1000, 250))
	require.NoError(t, l.Log(2000, 500.5))
	require.NoError(t, l.Stop())

	got, err := ReadCSV(l.Path())
	require.NoError(t, err)
	assert.Equal(t, []sample.Sample{
		{TimestampMs: 1000, CurrentMA: 250},
		{TimestampMs: 2000, CurrentMA: 500.5},
	}, got)
}

func TestReadCSV_Missing(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(pkgerrors.Cause(err)))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"header only", "timestamp_ms,current_mA\n", 0, false},
		{"rows", "timestamp_ms,current_mA\n1,2.000\n3,4.500\n", 2, false},
		{"empty", "", 0, true},
		{"bad header", "time,value\n1,2\n", 0, true},
		{"bad timestamp", "timestamp_ms,current_mA\nx,2\n", 0, true},
		{"bad current", "timestamp_ms,current_mA\n1,y\n", 0, true},
		{"extra field", "timestamp_ms,current_mA\n1,2,3\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
