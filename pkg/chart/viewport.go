package chart

import (
	"github.com/chewxy/math32"

	"github.com/itohio/energymon/pkg/sample"
)

// viewport maps sample coordinates to the plot area.
type viewport struct {
	xMin, xMax int64 // ms
	yMin, yMax float32
}

// fitViewport auto-scales to samples with a 10% vertical margin and at least windowMs horizontally.
func fitViewport(samples []sample.Sample, windowMs int64) viewport {
	if len(samples) == 0 {
		return viewport{xMin: 0, xMax: windowMs, yMin: 0, yMax: 100}
	}

	v := viewport{
		xMin: samples[0].TimestampMs,
		xMax: samples[len(samples)-1].TimestampMs,
		yMin: float32(samples[0].CurrentMA),
		yMax: float32(samples[0].CurrentMA),
	}
	for _, s := range samples {
		y := float32(s.CurrentMA)
		v.yMin = math32.Min(v.yMin, y)
		v.yMax = math32.Max(v.yMax, y)
	}

	span := v.yMax - v.yMin
	if span < 1 {
		span = 1
	}
	margin := span * 0.1
	v.yMin -= margin
	v.yMax += margin

	if v.xMax-v.xMin < windowMs {
		v.xMax = v.xMin + windowMs
	}
	return v
}

// project returns the position of (ts, mA) inside a plot of the given origin and size.
func (v viewport) project(ts int64, mA float64, x0, y0, w, h float32) (float32, float32) {
	dx := float32(v.xMax - v.xMin)
	if dx <= 0 {
		dx = 1
	}
	dy := v.yMax - v.yMin
	if dy <= 0 {
		dy = 1
	}
	x := x0 + float32(ts-v.xMin)/dx*w
	y := y0 + h - (float32(mA)-v.yMin)/dy*h
	return x, clamp(y, y0, y0+h)
}

// niceStep picks a 1/2/5 grid step giving about n divisions of span.
func niceStep(span float32, n int) float32 {
	if span <= 0 || n <= 0 {
		return 1
	}
	raw := span / float32(n)
	mag := math32.Pow(10, math32.Floor(math32.Log10(raw)))
	switch norm := raw / mag; {
	case norm <= 1:
		return mag
	case norm <= 2:
		return 2 * mag
	case norm <= 5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
