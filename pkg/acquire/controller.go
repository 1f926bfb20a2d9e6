package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/calib"
	"github.com/itohio/energymon/pkg/config"
	"github.com/itohio/energymon/pkg/datalog"
	"github.com/itohio/energymon/pkg/link"
	"github.com/itohio/energymon/pkg/metrics"
	"github.com/itohio/energymon/pkg/sample"
)

// ErrRunning is returned when an operation needs the controller to be Idle.
var ErrRunning = errors.New("acquisition in progress")

// DefaultSubscriberBuffer is the channel capacity used by Subscribe when none is given.
const DefaultSubscriberBuffer = 256

// State of the acquisition controller.
type State int32

const (
	Idle State = iota
	Running
	Calibrating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Calibrating:
		return "calibrating"
	default:
		return "unknown"
	}
}

// Controller owns a sample source, a calibrator, a session log and the session buffer,
// and runs the consumption loop between them.
type Controller struct {
	cfg    config.AcquisitionConfig
	src    link.Source
	sink   datalog.Sink
	cal    *calib.Calibrator
	buffer *sample.Buffer

	mu        sync.Mutex // serializes state transitions
	state     atomic.Int32
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	subMu   sync.Mutex
	subs    map[int]chan sample.Sample
	nextSub int
}

// New creates an idle controller. The calibrator starts uncalibrated.
func New(cfg *config.Config, src link.Source, sink datalog.Sink) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	acq := cfg.Acquisition
	def := config.Default().Acquisition
	if acq.SampleRateHz <= 0 {
		acq.SampleRateHz = def.SampleRateHz
	}
	if acq.ZeroSamples <= 0 {
		acq.ZeroSamples = def.ZeroSamples
	}
	if acq.ZeroReadTimeout <= 0 {
		acq.ZeroReadTimeout = def.ZeroReadTimeout
	}
	if acq.StopTimeout <= 0 {
		acq.StopTimeout = def.StopTimeout
	}
	if acq.DeviceName == "" {
		acq.DeviceName = def.DeviceName
	}

	c := &Controller{
		cfg:    acq,
		src:    src,
		sink:   sink,
		cal:    calib.New(cfg.Sensor.SensitivityMVPerA),
		buffer: sample.NewBuffer(),
		subs:   make(map[int]chan sample.Sample),
	}
	c.buffer.OnUpdate(c.notify)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start connects the source, opens a new log session, clears the buffer and launches the
// consumption loop. On failure everything opened so far is closed and the controller stays Idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIdle(); err != nil {
		return err
	}

	if err := c.src.Connect(); err != nil {
		metrics.ObserveSessionStart(err)
		return err
	}
	if err := c.sink.Start(c.cfg.DeviceName); err != nil {
		if derr := c.src.Disconnect(); derr != nil {
			logrus.Warnf("disconnect after failed start: %v", derr)
		}
		metrics.ObserveSessionStart(err)
		return err
	}

	c.buffer.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = time.Now()
	c.state.Store(int32(Running))

	go c.run(ctx, c.done)

	metrics.ObserveSessionStart(nil)
	logrus.WithFields(logrus.Fields{
		"device": c.cfg.DeviceName,
		"rate":   c.cfg.SampleRateHz,
	}).Info("acquisition started")
	return nil
}

// Stop ends the session: it stops the loop (waiting at most the stop timeout), then
// disconnects the source, consumes what the source had already queued and closes the
// log session. Stop is a no-op unless Running.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != Running {
		return nil
	}

	c.cancel()
	exited := true
	select {
	case <-c.done:
	case <-time.After(c.cfg.StopTimeout):
		exited = false
		logrus.Warnf("consumption loop did not exit within %s", c.cfg.StopTimeout)
	}

	derr := c.src.Disconnect()
	if exited {
		// Received before the stop request, so still part of this session.
		if n := c.drain(); n > 0 {
			logrus.Debugf("consumed %d queued samples at stop", n)
		}
	}
	serr := c.sink.Stop()
	c.state.Store(int32(Idle))

	elapsed := time.Since(c.startedAt)
	metrics.ObserveSessionEnd(elapsed)
	logrus.WithFields(logrus.Fields{
		"samples":  c.buffer.Len(),
		"duration": elapsed.Round(time.Millisecond),
	}).Info("acquisition stopped")

	return errors.Join(derr, serr)
}

// CalibrateZero connects the source, takes up to n raw readings with the zero current
// flowing and sets the offset to their mean. n <= 0 uses the configured count.
// Timed out reads are skipped. It returns the number of readings collected;
// with none collected the calibration is unchanged.
func (c *Controller) CalibrateZero(n int) (int, error) {
	c.mu.Lock()
	if err := c.checkIdle(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.state.Store(int32(Calibrating))
	c.mu.Unlock()

	defer c.state.Store(int32(Idle))

	if n <= 0 {
		n = c.cfg.ZeroSamples
	}

	if err := c.src.Connect(); err != nil {
		return 0, err
	}

	values := make([]float64, 0, n)
	for range n {
		raw, ok := c.src.Read(true, c.cfg.ZeroReadTimeout)
		if !ok {
			continue
		}
		values = append(values, raw.CurrentMA)
	}

	if err := c.src.Disconnect(); err != nil {
		logrus.Warnf("disconnect after zero calibration: %v", err)
	}

	c.cal.CalibrateZero(values)
	logrus.WithFields(logrus.Fields{
		"requested": n,
		"collected": len(values),
		"offset_ma": c.cal.State().OffsetMA,
	}).Info("zero calibration finished")

	return len(values), nil
}

// CalibrateScale sets the gain from a reference current in amperes and the
// sensor reading in mA taken at that current.
func (c *Controller) CalibrateScale(measuredA, sensorMA float64) {
	c.cal.CalibrateScale(measuredA, sensorMA)
}

// Calibration returns the current calibration state.
func (c *Controller) Calibration() calib.State {
	return c.cal.State()
}

// SetCalibration replaces the calibration, e.g. to carry it over to a rebuilt controller.
func (c *Controller) SetCalibration(s calib.State) {
	c.cal.SetState(s)
}

// Summarize computes the summary metrics of the session buffer.
// It returns false when the buffer is empty.
func (c *Controller) Summarize() (analysis.Summary, bool) {
	currents := c.buffer.Currents()
	if len(currents) == 0 {
		return analysis.Summary{}, false
	}
	return analysis.Summarize(currents, c.cfg.VoltageV, c.cfg.SampleRateHz), true
}

// Samples returns a copy of the session buffer.
func (c *Controller) Samples() []sample.Sample {
	return c.buffer.Snapshot()
}

// SamplesSince returns the buffered samples with index >= n, for polling.
func (c *Controller) SamplesSince(n int) []sample.Sample {
	return c.buffer.Since(n)
}

// Window returns the samples of the last window of the session.
func (c *Controller) Window(window time.Duration) []sample.Sample {
	return c.buffer.Window(window.Milliseconds())
}

// LogPath returns the current or last session file, if the sink exposes one.
func (c *Controller) LogPath() string {
	if p, ok := c.sink.(interface{ Path() string }); ok {
		return p.Path()
	}
	return ""
}

// Subscribe returns a channel receiving each newly buffered sample, and a func to
// cancel the subscription. A subscriber that falls behind misses samples; the
// session buffer and log are never affected.
func (c *Controller) Subscribe(bufSize int) (<-chan sample.Sample, func()) {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	ch := make(chan sample.Sample, bufSize)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// OnSample registers a callback run on the consumption loop for every buffered sample.
// The callback must not block.
func (c *Controller) OnSample(callback func(s sample.Sample)) {
	c.buffer.OnUpdate(callback)
}

func (c *Controller) notify(s sample.Sample) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for id, ch := range c.subs {
		select {
		case ch <- s:
		default:
			logrus.Debugf("subscriber %d is behind, skipping sample", id)
		}
	}
}

// run is the consumption loop. Every 1/rate it drains whatever the source has queued.
// Samples arriving faster than the rate are consumed in bursts, never dropped.
func (c *Controller) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("panic in consumption loop: %v", r)
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.SampleRateHz))
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			raw, ok := c.src.Read(false, 0)
			if !ok {
				break
			}
			c.accept(raw)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkIdle reports ErrRunning unless the controller is Idle and the loop of the
// previous session has exited. Callers hold c.mu.
func (c *Controller) checkIdle() error {
	if c.State() != Idle {
		return ErrRunning
	}
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return fmt.Errorf("%w: previous consumption loop has not exited", ErrRunning)
		}
	}
	return nil
}

// drain consumes everything the source has queued.
func (c *Controller) drain() int {
	n := 0
	for {
		raw, ok := c.src.Read(false, 0)
		if !ok {
			return n
		}
		c.accept(raw)
		n++
	}
}

// accept calibrates, buffers and logs one sample.
func (c *Controller) accept(raw link.RawSample) {
	s := sample.Sample{
		TimestampMs: raw.TimestampMs,
		CurrentMA:   c.cal.Apply(raw.CurrentMA),
	}

	c.buffer.Append(s)
	metrics.IncSamples()

	err := c.sink.Log(s.TimestampMs, s.CurrentMA)
	metrics.ObserveLogWrite(err)
	if err != nil {
		logrus.Errorf("failed to log sample: %v", err)
	}
}
