package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultDir is where session files are written.
	DefaultDir = "logs"

	timeLayout = "20060102_150405"
)

// Header is the first row of every session file.
var Header = []string{"timestamp_ms", "current_mA"}

// ErrIO matches every IOError with errors.Is.
var ErrIO = errors.New("log i/o error")

// IOError reports a session file that could not be created or written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("session log %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// Sink receives calibrated samples of one session at a time.
type Sink interface {
	Start(deviceName string) error
	Log(timestampMs int64, currentMA float64) error
	Stop() error
}

var _ Sink = (*CSV)(nil)

// CSV writes each session to its own CSV file, flushed and synced on every row.
type CSV struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
	rows uint64
}

// Option customizes a CSV logger.
type Option func(*CSV)

// WithClock replaces the wall clock used to name session files.
func WithClock(now func() time.Time) Option {
	return func(c *CSV) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCSV creates a logger writing into dir.
func NewCSV(dir string, opts ...Option) *CSV {
	if dir == "" {
		dir = DefaultDir
	}
	c := &CSV{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName returns the session file name for deviceName started at t.
func FileName(deviceName string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", deviceName, t.Format(timeLayout))
}

// Start opens a new session file and writes the header.
// A session that is still open is closed first.
func (c *CSV) Start(deviceName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file != nil {
		if err := c.closeLocked(); err != nil {
			logrus.Warnf("closing previous session log: %v", err)
		}
	}

	path := filepath.Join(c.dir, FileName(deviceName, c.now()))
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return &IOError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}

	w := csv.NewWriter(f)
	if err := writeRow(f, w, Header); err != nil {
		f.Close()
		return &IOError{Path: path, Err: err}
	}

	c.file = f
	c.w = w
	c.path = path
	c.rows = 0

	logrus.WithField("file", path).Info("recording session")
	return nil
}

// Log appends one row. It is a no-op when no session is open.
func (c *CSV) Log(timestampMs int64, currentMA float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}

	row := []string{
		strconv.FormatInt(timestampMs, 10),
		strconv.FormatFloat(currentMA, 'f', 3, 64),
	}
	if err := writeRow(c.file, c.w, row); err != nil {
		return &IOError{Path: c.path, Err: err}
	}
	c.rows++
	return nil
}

// Stop closes the open session. It is a no-op when nothing is open.
func (c *CSV) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	return c.closeLocked()
}

// Path returns the file of the current or most recent session.
func (c *CSV) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// IsOpen reports whether a session is open.
func (c *CSV) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file != nil
}

func (c *CSV) closeLocked() error {
	c.w.Flush()
	werr := c.w.Error()
	cerr := c.file.Close()

	logrus.WithFields(logrus.Fields{
		"file": c.path,
		"rows": c.rows,
	}).Info("session log closed")

	c.file = nil
	c.w = nil

	if werr != nil {
		return &IOError{Path: c.path, Err: werr}
	}
	if cerr != nil {
		return &IOError{Path: c.path, Err: cerr}
	}
	return nil
}

// writeRow writes a record and pushes it to durable storage.
func writeRow(f *os.File, w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
