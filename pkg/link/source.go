package link

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnection is matched by every ConnectionError.
var ErrConnection = errors.New("connection error")

// RawSample represents one reading as received from the MCU, before calibration.
type RawSample struct {
	TimestampMs int64   // MCU uptime in milliseconds
	CurrentMA   float64 // Sensor current (mA)
}

// Source defines the interface for sample sources (real serial link or simulated).
type Source interface {
	Connect() error
	Disconnect() error
	// Read dequeues the oldest pending sample. With blocking=false it returns
	// immediately; otherwise it waits up to timeout.
	Read(blocking bool, timeout time.Duration) (RawSample, bool)
	IsConnected() bool
}

// Stats holds line counters of a source.
type Stats struct {
	Lines     uint64
	Parsed    uint64
	Malformed uint64
}

// ConnectionError reports a transport that could not be opened.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to open %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
