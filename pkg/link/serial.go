package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/itohio/energymon/pkg/metrics"
)

const (
	// DefaultBaudRate is the UART rate of the Arduino Nano firmware.
	DefaultBaudRate = 9600
	// DefaultBufferSize is the default capacity of the sample queue.
	DefaultBufferSize = 4096
	// DefaultReadTimeout bounds a single transport read so the read loop can observe a stop request.
	DefaultReadTimeout = time.Second
	// DefaultJoinTimeout bounds how long Disconnect waits for the read loop.
	DefaultJoinTimeout = time.Second
	// DefaultDequeueTimeout is used by blocking reads that pass no timeout.
	DefaultDequeueTimeout = 100 * time.Millisecond

	// emptyReadBackoff paces retries of transports that return no data and no error.
	emptyReadBackoff = 5 * time.Millisecond
)

// BaudRates lists the rates offered by the shell.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

// Opener opens the transport behind a Serial source.
type Opener func(endpoint string, baudRate int, readTimeout time.Duration) (io.ReadCloser, error)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial owns one serial connection and a read loop that feeds a FIFO queue of samples.
type Serial struct {
	port        string
	baudRate    int
	bufSize     int
	readTimeout time.Duration
	joinTimeout time.Duration
	open        Opener

	conn      io.ReadCloser
	samples   chan RawSample
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	lines     atomic.Uint64
	parsed    atomic.Uint64
	malformed atomic.Uint64
}

// Option customizes a Serial source.
type Option func(*Serial)

// WithOpener replaces the serial port opener, e.g. with an in-memory transport.
func WithOpener(open Opener) Option {
	return func(d *Serial) {
		if open != nil {
			d.open = open
		}
	}
}

// WithTimeouts sets the transport read timeout and the read loop join timeout.
func WithTimeouts(read, join time.Duration) Option {
	return func(d *Serial) {
		if read > 0 {
			d.readTimeout = read
		}
		if join > 0 {
			d.joinTimeout = join
		}
	}
}

// New creates a new Serial source with the specified port, baud rate, and queue size.
func New(port string, baudRate int, bufSize int, opts ...Option) *Serial {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	d := &Serial{
		port:        port,
		baudRate:    baudRate,
		bufSize:     bufSize,
		readTimeout: DefaultReadTimeout,
		joinTimeout: DefaultJoinTimeout,
		open:        openSerial,
		samples:     make(chan RawSample, bufSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, p := range details {
			desc := p.Name
			if p.IsUSB {
				desc = fmt.Sprintf("%s %s:%s", p.Product, p.VID, p.PID)
			}
			result = append(result, Port{Name: p.Name, Description: strings.TrimSpace(desc)})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// openSerial opens a real serial port in 8N1 mode.
func openSerial(endpoint string, baudRate int, readTimeout time.Duration) (io.ReadCloser, error) {
	port, err := serial.Open(endpoint, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// Connect opens the transport and starts the read loop.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected to %s", d.port)
	}

	conn, err := d.open(d.port, d.baudRate, d.readTimeout)
	if err != nil {
		return &ConnectionError{Endpoint: d.port, Err: err}
	}

	// Samples left over from a previous connection are stale.
	d.drain()

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.done = make(chan struct{})
	d.connected = true

	go d.readSamples(ctx, conn, d.done)

	logrus.WithFields(logrus.Fields{
		"port": d.port,
		"baud": d.baudRate,
	}).Info("connected to serial port")

	return nil
}

// Disconnect stops the read loop, waiting at most the join timeout, then closes the transport.
// Calling it while disconnected is a no-op. Queued samples remain readable.
func (d *Serial) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	select {
	case <-d.done:
	case <-time.After(d.joinTimeout):
		logrus.WithField("port", d.port).Warnf("read loop did not exit within %s, closing port anyway", d.joinTimeout)
	}

	var err error
	if d.conn != nil {
		if cerr := d.conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close serial port %s: %w", d.port, cerr)
		}
		d.conn = nil
	}
	d.connected = false

	logrus.WithFields(logrus.Fields{
		"port":      d.port,
		"parsed":    d.parsed.Load(),
		"malformed": d.malformed.Load(),
	}).Info("disconnected from serial port")

	return err
}

// Read dequeues the oldest pending sample.
func (d *Serial) Read(blocking bool, timeout time.Duration) (RawSample, bool) {
	return dequeue(d.samples, blocking, timeout)
}

// IsConnected returns whether the transport is currently open.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Pending returns the number of queued samples.
func (d *Serial) Pending() int {
	return len(d.samples)
}

// Stats returns the line counters accumulated over the lifetime of the source.
func (d *Serial) Stats() Stats {
	return Stats{
		Lines:     d.lines.Load(),
		Parsed:    d.parsed.Load(),
		Malformed: d.malformed.Load(),
	}
}

// drain discards queued samples.
func (d *Serial) drain() {
	for {
		select {
		case <-d.samples:
		default:
			return
		}
	}
}

// readSamples reads lines from the transport and queues the parsed samples.
// A transport error ends the loop; it never drops a parsed sample while running.
func (d *Serial) readSamples(ctx context.Context, conn io.Reader, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("panic in serial read loop: %v", r)
		}
	}()

	scanner := bufio.NewScanner(&ctxReader{ctx: ctx, r: conn})
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.lines.Add(1)

		sample, err := parseLine(line)
		metrics.ObserveLine(err == nil)
		if err != nil {
			d.malformed.Add(1)
			logrus.Debugf("dropping line %q: %v", line, err)
			continue
		}
		d.parsed.Add(1)

		if ctx.Err() != nil {
			return
		}
		// Queue full: wait for the consumer rather than drop.
		select {
		case d.samples <- sample:
			metrics.SetQueueDepth(len(d.samples))
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logrus.WithField("port", d.port).Warnf("serial read loop stopped: %v", err)
	}
}

// ctxReader retries empty reads caused by the transport read timeout until ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	for {
		if c.ctx.Err() != nil {
			return 0, io.EOF
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}

		select {
		case <-c.ctx.Done():
			return 0, io.EOF
		case <-time.After(emptyReadBackoff):
		}
	}
}

// dequeue pops the oldest sample from q, optionally waiting up to timeout.
func dequeue(q <-chan RawSample, blocking bool, timeout time.Duration) (RawSample, bool) {
	if !blocking {
		select {
		case s := <-q:
			return s, true
		default:
			return RawSample{}, false
		}
	}

	if timeout <= 0 {
		timeout = DefaultDequeueTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-q:
		return s, true
	case <-timer.C:
		return RawSample{}, false
	}
}
