package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   RawSample
		wantOK bool
	}{
		{
			name:   "valid line",
			line:   "1234,56.7",
			want:   RawSample{TimestampMs: 1234, CurrentMA: 56.7},
			wantOK: true,
		},
		{
			name:   "valid line - integer current as emitted by firmware",
			line:   "20,-27",
			want:   RawSample{TimestampMs: 20, CurrentMA: -27},
			wantOK: true,
		},
		{
			name:   "valid line - whitespace around fields",
			line:   "  1000 ,\t250.0 ",
			want:   RawSample{TimestampMs: 1000, CurrentMA: 250.0},
			wantOK: true,
		},
		{
			name:   "valid line - zero timestamp",
			line:   "0,0.0",
			want:   RawSample{TimestampMs: 0, CurrentMA: 0},
			wantOK: true,
		},
		{
			name: "invalid - single field",
			line: "1234",
		},
		{
			name: "invalid - three fields",
			line: "a,b,c",
		},
		{
			name: "invalid - too many numeric fields",
			line: "1,2,3",
		},
		{
			name: "invalid - non-numeric timestamp",
			line: "abc,12",
		},
		{
			name: "invalid - non-numeric current",
			line: "1234,abc",
		},
		{
			name: "invalid - fractional timestamp",
			line: "12.5,3",
		},
		{
			name: "invalid - negative timestamp",
			line: "-5,3",
		},
		{
			name: "invalid - NaN current",
			line: "5,NaN",
		},
		{
			name: "invalid - infinite current",
			line: "5,+Inf",
		},
		{
			name: "invalid - empty",
			line: "",
		},
		{
			name: "invalid - empty fields",
			line: ",",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Equal(t, RawSample{}, got)
			}
		})
	}
}

func TestParseLine_ErrorMessages(t *testing.T) {
	_, err := parseLine("1234")
	assert.ErrorContains(t, err, "expected 2 comma-separated values, got 1")

	_, err = parseLine("x,1")
	assert.ErrorContains(t, err, "invalid timestamp")

	_, err = parseLine("1,x")
	assert.ErrorContains(t, err, "invalid current")
}
