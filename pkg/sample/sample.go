package sample

import "sync"

// Sample is one calibrated reading.
type Sample struct {
	TimestampMs int64   `json:"timestamp_ms"`
	CurrentMA   float64 `json:"current_mA"`
}

// Buffer is the append-only sample buffer of one acquisition session.
// It is appended by a single writer and may be read concurrently.
type Buffer struct {
	mu      sync.RWMutex
	samples []Sample

	callbacks []func(s Sample)
	cbMu      sync.RWMutex
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		samples: make([]Sample, 0, 1024),
	}
}

// Append adds a sample and notifies registered callbacks.
func (b *Buffer) Append(s Sample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()

	b.cbMu.RLock()
	callbacks := make([]func(Sample), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(s)
		}
	}
}

// Reset starts a new session. Slices returned earlier are not affected.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = make([]Sample, 0, cap(b.samples))
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Snapshot returns a copy of all buffered samples, oldest first.
func (b *Buffer) Snapshot() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Sample, len(b.samples))
	copy(result, b.samples)
	return result
}

// Since returns a copy of samples with index >= n. A negative n is treated as 0.
func (b *Buffer) Since(n int) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(b.samples) {
		return []Sample{}
	}
	result := make([]Sample, len(b.samples)-n)
	copy(result, b.samples[n:])
	return result
}

// Window returns a copy of the samples whose timestamps lie within windowMs of the latest one.
func (b *Buffer) Window(windowMs int64) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) == 0 {
		return []Sample{}
	}
	cutoff := b.samples[len(b.samples)-1].TimestampMs - windowMs
	start := len(b.samples)
	for start > 0 && b.samples[start-1].TimestampMs >= cutoff {
		start--
	}
	result := make([]Sample, len(b.samples)-start)
	copy(result, b.samples[start:])
	return result
}

// Currents returns the current readings of all buffered samples.
func (b *Buffer) Currents() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Currents(b.samples)
}

// OnUpdate registers a callback invoked after every Append.
// The callback runs on the appending goroutine and should return quickly.
func (b *Buffer) OnUpdate(callback func(s Sample)) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Currents extracts the current readings of samples.
func Currents(samples []Sample) []float64 {
	result := make([]float64, len(samples))
	for i, s := range samples {
		result[i] = s.CurrentMA
	}
	return result
}
