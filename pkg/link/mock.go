package link

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/config"
)

// Mock simulates the current sensor MCU for development without hardware.
type Mock struct {
	cfg config.MockConfig

	samples   chan RawSample
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	produced atomic.Uint64
}

// NewMock creates a new simulated source. cfg is copied; nil uses the defaults.
func NewMock(cfg *config.MockConfig) *Mock {
	def := config.Default().Mock
	c := def
	if cfg != nil {
		c = *cfg
	}
	if c.Period <= 0 {
		c.Period = def.Period
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = def.SampleInterval
	}

	return &Mock{
		cfg:     c,
		samples: make(chan RawSample, DefaultBufferSize),
	}
}

// Connect starts generating samples. Samples left over from a previous connection are discarded.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.drain()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.connected = true

	go m.generateSamples(ctx, m.done, time.Now())

	logrus.Info("connected to simulated source")
	return nil
}

// Disconnect stops the generator. Queued samples remain readable.
func (m *Mock) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	select {
	case <-m.done:
	case <-time.After(DefaultJoinTimeout):
		logrus.Warn("simulated source did not stop in time")
	}
	m.connected = false

	return nil
}

// Read dequeues the oldest pending sample.
func (m *Mock) Read(blocking bool, timeout time.Duration) (RawSample, bool) {
	return dequeue(m.samples, blocking, timeout)
}

// IsConnected returns whether the generator is running.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) drain() {
	for {
		select {
		case <-m.samples:
		default:
			return
		}
	}
}

// generateSamples generates simulated samples at the configured interval.
// Timestamps count from start, like the firmware's millis() after reset.
func (m *Mock) generateSamples(ctx context.Context, done chan<- struct{}, start time.Time) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			sample := m.generateSample(now.Sub(start))
			select {
			case m.samples <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}

// generateSample produces a load cycle: a half-period sine burst over a resting current, plus noise.
func (m *Mock) generateSample(elapsed time.Duration) RawSample {
	n := m.produced.Add(1)

	phase := 2 * math.Pi * elapsed.Seconds() / m.cfg.Period.Seconds()
	load := math.Max(math.Sin(phase), 0) * m.cfg.AmplitudeMA

	noise := (math.Sin(float64(n)*1.7) + math.Cos(float64(n)*0.31)) * m.cfg.NoiseMA * 0.5

	return RawSample{
		TimestampMs: elapsed.Milliseconds(),
		CurrentMA:   math.Round(m.cfg.BaseMA + load + noise), // Firmware emits whole mA
	}
}
