package chart

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/energymon/pkg/config"
	"github.com/itohio/energymon/pkg/sample"
)

// Chart is a Fyne widget drawing the live current trace of a session.
type Chart struct {
	widget.BaseWidget

	cfg config.DisplayConfig

	// Data (protected by mu)
	mu       sync.RWMutex
	display  []sample.Sample
	smoothed []sample.Sample
	avgMA    float64
	hasAvg   bool

	view viewport
}

// New creates an empty chart.
func New(cfg config.DisplayConfig) *Chart {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = config.Default().Display.MaxPoints
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = config.Default().Display.WindowSeconds
	}

	c := &Chart{
		cfg:      cfg,
		display:  make([]sample.Sample, 0, cfg.MaxPoints),
		smoothed: make([]sample.Sample, 0, cfg.MaxPoints),
	}
	c.view = fitViewport(nil, c.windowMs())
	c.ExtendBaseWidget(c)
	return c
}

// Configure applies new display settings from the next Update on.
func (c *Chart) Configure(cfg config.DisplayConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.MaxPoints > 0 {
		c.cfg.MaxPoints = cfg.MaxPoints
	}
	if cfg.WindowSeconds > 0 {
		c.cfg.WindowSeconds = cfg.WindowSeconds
	}
	c.cfg.AverageSamples = cfg.AverageSamples
}

// Update replaces the displayed window. avgMA is drawn as a reference line when hasAvg is set.
// Call it on the Fyne goroutine (fyne.Do).
func (c *Chart) Update(window []sample.Sample, avgMA float64, hasAvg bool) {
	c.mu.Lock()
	src := window
	if c.cfg.AverageSamples > 1 {
		c.smoothed = sample.MovingAverage(c.smoothed, window, c.cfg.AverageSamples)
		src = c.smoothed
	}
	c.display = sample.Downsample(c.display, src, c.cfg.MaxPoints)
	c.avgMA = avgMA
	c.hasAvg = hasAvg
	c.view = fitViewport(c.display, c.windowMs())
	c.mu.Unlock()

	c.Refresh()
}

// Clear empties the chart.
func (c *Chart) Clear() {
	c.Update(nil, 0, false)
}

func (c *Chart) windowMs() int64 {
	return int64(c.cfg.WindowSeconds * 1000)
}

// CreateRenderer creates the widget renderer.
func (c *Chart) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &chartRenderer{
		chart:   c,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
