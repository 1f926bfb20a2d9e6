package chart

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"

	"github.com/itohio/energymon/pkg/sample"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	avgColor   = color.RGBA{R: 100, G: 200, B: 255, A: 255}
)

const (
	marginLeft   = float32(60)
	marginRight  = float32(20)
	marginTop    = float32(20)
	marginBottom = float32(40)

	timeDivisions = 10
)

// chartRenderer renders the chart widget.
type chartRenderer struct {
	chart *Chart

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

func (r *chartRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *chartRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.chart.BaseWidget.Refresh()
	}
}

func (r *chartRenderer) Refresh() {
	r.chart.mu.RLock()
	samples := r.chart.display
	view := r.chart.view
	avg, hasAvg := r.chart.avgMA, r.chart.hasAvg
	r.chart.mu.RUnlock()

	size := r.chart.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.bg}

	x0, y0 := marginLeft, marginTop
	w := size.Width - marginLeft - marginRight
	h := size.Height - marginTop - marginBottom

	r.drawGrid(view, x0, y0, w, h)
	r.drawTrace(view, samples, x0, y0, w, h)
	if hasAvg {
		r.drawAverage(view, avg, x0, y0, w, h)
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		text := canvas.NewText(fmt.Sprintf("%.1f mA", last.CurrentMA), traceColor)
		text.TextSize = 12
		text.Move(fyne.NewPos(x0+10, y0+5))
		r.objects = append(r.objects, text)
	}
}

// drawGrid draws current divisions at round mA steps and time divisions.
func (r *chartRenderer) drawGrid(v viewport, x0, y0, w, h float32) {
	step := niceStep(v.yMax-v.yMin, 8)
	for mA := math32.Ceil(v.yMin/step) * step; mA <= v.yMax; mA += step {
		_, y := v.project(v.xMin, float64(mA), x0, y0, w, h)
		r.addLine(gridColor, 1, x0, y, x0+w, y)

		text := canvas.NewText(fmt.Sprintf("%g", mA), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(x0-5, y-6))
		r.objects = append(r.objects, text)
	}

	span := v.xMax - v.xMin
	for i := range timeDivisions + 1 {
		x := x0 + float32(i)*w/timeDivisions
		r.addLine(gridColor, 1, x, y0, x, y0+h)

		secs := float32(span) * float32(i) / timeDivisions / 1000
		text := canvas.NewText(fmt.Sprintf("%.1fs", secs), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, y0+h+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws the current curve (orange).
func (r *chartRenderer) drawTrace(v viewport, samples []sample.Sample, x0, y0, w, h float32) {
	if len(samples) < 2 {
		return
	}
	px, py := v.project(samples[0].TimestampMs, samples[0].CurrentMA, x0, y0, w, h)
	for _, s := range samples[1:] {
		x, y := v.project(s.TimestampMs, s.CurrentMA, x0, y0, w, h)
		r.addLine(traceColor, 1.5, px, py, x, y)
		px, py = x, y
	}
}

// drawAverage draws the session average as a horizontal line (light blue).
func (r *chartRenderer) drawAverage(v viewport, avg float64, x0, y0, w, h float32) {
	_, y := v.project(v.xMin, avg, x0, y0, w, h)
	r.addLine(avgColor, 1, x0, y, x0+w, y)

	text := canvas.NewText(fmt.Sprintf("avg %.1f mA", avg), avgColor)
	text.TextSize = 10
	text.Alignment = fyne.TextAlignTrailing
	text.Move(fyne.NewPos(x0+w-5, y-14))
	r.objects = append(r.objects, text)
}

func (r *chartRenderer) addLine(c color.Color, width, x1, y1, x2, y2 float32) {
	line := canvas.NewLine(c)
	line.Position1 = fyne.NewPos(x1, y1)
	line.Position2 = fyne.NewPos(x2, y2)
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

func (r *chartRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *chartRenderer) Destroy() {}
