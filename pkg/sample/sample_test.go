package sample

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{TimestampMs: int64(i) * 20, CurrentMA: float64(i)}
	}
	return out
}

func TestBuffer_AppendSnapshot(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())

	for _, s := range seq(5) {
		b.Append(s)
	}
	require.Equal(t, 5, b.Len())

	snap := b.Snapshot()
	assert.Equal(t, seq(5), snap)

	// Snapshot is a copy
	snap[0].CurrentMA = 999
	assert.Equal(t, 0.0, b.Snapshot()[0].CurrentMA)
}

func TestBuffer_Since(t *testing.T) {
	b := NewBuffer()
	for _, s := range seq(5) {
		b.Append(s)
	}

	tests := []struct {
		name string
		n    int
		want []Sample
	}{
		{"from start", 0, seq(5)},
		{"negative", -3, seq(5)},
		{"tail", 3, seq(5)[3:]},
		{"at end", 5, []Sample{}},
		{"past end", 42, []Sample{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Since(tt.n))
		})
	}
}

func TestBuffer_Window(t *testing.T) {
	b := NewBuffer()
	assert.Empty(t, b.Window(100))

	for _, s := range seq(10) { // timestamps 0..180
		b.Append(s)
	}
	w := b.Window(40)
	require.Len(t, w, 3)
	assert.Equal(t, int64(140), w[0].TimestampMs)
	assert.Equal(t, int64(180), w[2].TimestampMs)

	assert.Len(t, b.Window(10_000), 10)
}

func TestBuffer_ResetAndCurrents(t *testing.T) {
	b := NewBuffer()
	for _, s := range seq(3) {
		b.Append(s)
	}
	assert.Equal(t, []float64{0, 1, 2}, b.Currents())

	old := b.Snapshot()
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Currents())
	assert.Len(t, old, 3)
}

func TestBuffer_OnUpdate(t *testing.T) {
	b := NewBuffer()
	var got []Sample
	b.OnUpdate(func(s Sample) { got = append(got, s) })
	b.OnUpdate(nil)

	for _, s := range seq(3) {
		b.Append(s)
	}
	assert.Equal(t, seq(3), got)
}

func TestBuffer_ConcurrentAppendAndRead(t *testing.T) {
	b := NewBuffer()
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, s := range seq(n) {
			b.Append(s)
		}
	}()

	for range 100 {
		snap := b.Snapshot()
		for i := 1; i < len(snap); i++ {
			require.Less(t, snap[i-1].TimestampMs, snap[i].TimestampMs)
		}
		_ = b.Currents()
	}
	wg.Wait()
	assert.Equal(t, n, b.Len())
}
