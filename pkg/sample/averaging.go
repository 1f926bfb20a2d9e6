package sample

// MovingAverage smooths the current readings of samples with a trailing window of size window.
// Timestamps are kept. A window of 1 or less copies the input.
// Destination-based like Downsample; dst must not share memory with samples.
func MovingAverage(dst []Sample, samples []Sample, window int) []Sample {
	if cap(dst) >= len(samples) {
		dst = dst[:len(samples)]
	} else {
		dst = make([]Sample, len(samples))
	}
	if window <= 1 {
		copy(dst, samples)
		return dst
	}

	var sum float64
	for i, s := range samples {
		sum += s.CurrentMA
		n := i + 1
		if i >= window {
			sum -= samples[i-window].CurrentMA
			n = window
		}
		dst[i] = Sample{
			TimestampMs: s.TimestampMs,
			CurrentMA:   sum / float64(n),
		}
	}

	return dst
}
