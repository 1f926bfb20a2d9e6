package sample

// Downsample reduces samples to at most maxPoints by decimation for display.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// The last sample is always kept so the trace ends at the latest reading.
func Downsample(dst []Sample, samples []Sample, maxPoints int) []Sample {
	if maxPoints <= 0 || len(samples) <= maxPoints {
		if cap(dst) >= len(samples) {
			dst = dst[:len(samples)]
			copy(dst, samples)
			return dst
		}
		result := make([]Sample, len(samples))
		copy(result, samples)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Sample, 0, maxPoints)
	}

	if maxPoints == 1 {
		return append(dst, samples[len(samples)-1])
	}

	step := float64(len(samples)-1) / float64(maxPoints-1)
	for i := range maxPoints {
		idx := int(float64(i)*step + 0.5)
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		dst = append(dst, samples[idx])
	}

	return dst
}
