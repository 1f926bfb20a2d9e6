package calib

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultSensitivityMVPerA is the nominal sensitivity of the ACS712-05B.
const DefaultSensitivityMVPerA = 185.0

// State holds the offset/scale correction.
type State struct {
	OffsetMA float64 `json:"offset_ma"`
	Scale    float64 `json:"scale"`
}

// Calibrator applies offset and gain correction to raw current readings.
// Calibration methods may run concurrently with Apply.
type Calibrator struct {
	mu          sync.RWMutex
	state       State
	sensitivity float64
}

// New creates an uncalibrated Calibrator (offset 0, scale 1).
// The sensitivity is informational and not used by the correction.
func New(sensitivityMVPerA float64) *Calibrator {
	if sensitivityMVPerA <= 0 {
		sensitivityMVPerA = DefaultSensitivityMVPerA
	}
	return &Calibrator{
		state:       State{OffsetMA: 0, Scale: 1},
		sensitivity: sensitivityMVPerA,
	}
}

// CalibrateZero sets the offset to the mean of readings taken at 0 A.
// An empty slice leaves the state unchanged.
func (c *Calibrator) CalibrateZero(samples []float64) {
	if len(samples) == 0 {
		return
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	offset := sum / float64(len(samples))

	c.mu.Lock()
	c.state.OffsetMA = offset
	c.mu.Unlock()

	logrus.WithField("samples", len(samples)).Debugf("zero offset calibrated: %.3f mA", offset)
}

// CalibrateScale derives the gain from a known reference current.
// E.g. 2 A through the sensor reading 1950 mA gives scale 2000/1950.
// A zero sensor reading leaves the scale unchanged.
func (c *Calibrator) CalibrateScale(measuredCurrentA, sensorOutputMA float64) {
	if sensorOutputMA == 0 {
		return
	}
	scale := measuredCurrentA * 1000 / sensorOutputMA

	c.mu.Lock()
	c.state.Scale = scale
	c.mu.Unlock()

	logrus.Debugf("scale calibrated: %.5f", scale)
}

// Apply returns the corrected current for a raw reading.
func (c *Calibrator) Apply(rawMA float64) float64 {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()
	return (rawMA - s.OffsetMA) * s.Scale
}

// State returns a snapshot of the current calibration.
func (c *Calibrator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState replaces the calibration, e.g. with values entered by the operator.
func (c *Calibrator) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Reset restores offset 0 and scale 1.
func (c *Calibrator) Reset() {
	c.SetState(State{OffsetMA: 0, Scale: 1})
}

// Sensitivity returns the nominal sensor sensitivity in mV/A.
func (c *Calibrator) Sensitivity() float64 {
	return c.sensitivity
}
