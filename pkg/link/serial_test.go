package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringOpener serves each connection from the next payload.
func stringOpener(payloads ...string) Opener {
	var calls atomic.Int32
	return func(string, int, time.Duration) (io.ReadCloser, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(payloads) {
			i = len(payloads) - 1
		}
		return io.NopCloser(strings.NewReader(payloads[i])), nil
	}
}

func TestNew(t *testing.T) {
	dev := New("/dev/ttyUSB0", 115200, 100)
	assert.NotNil(t, dev)
	assert.Equal(t, "/dev/ttyUSB0", dev.port)
	assert.Equal(t, 115200, dev.baudRate)
	assert.Equal(t, 100, dev.bufSize)
	assert.Equal(t, 100, cap(dev.samples))
	assert.False(t, dev.IsConnected())
}

func TestNew_Defaults(t *testing.T) {
	dev := New("/dev/ttyUSB0", 0, 0)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
	assert.Equal(t, DefaultBufferSize, dev.bufSize)
	assert.Equal(t, DefaultReadTimeout, dev.readTimeout)
	assert.Equal(t, DefaultJoinTimeout, dev.joinTimeout)
}

func TestSerial_RoundTrip(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener("1000,250.0\n2000,500.0\n")))
	require.NoError(t, dev.Connect())
	assert.True(t, dev.IsConnected())

	first, ok := dev.Read(true, time.Second)
	require.True(t, ok)
	second, ok := dev.Read(true, time.Second)
	require.True(t, ok)

	assert.Equal(t, RawSample{TimestampMs: 1000, CurrentMA: 250.0}, first)
	assert.Equal(t, RawSample{TimestampMs: 2000, CurrentMA: 500.0}, second)

	require.NoError(t, dev.Disconnect())
	assert.False(t, dev.IsConnected())
}

func TestSerial_ReadAfterDisconnect(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener("1000,250.0\n2000,500.0\n")))
	require.NoError(t, dev.Connect())

	assert.Eventually(t, func() bool { return dev.Pending() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, dev.Disconnect())

	first, ok := dev.Read(true, 0)
	require.True(t, ok)
	second, ok := dev.Read(true, 0)
	require.True(t, ok)
	assert.Equal(t, int64(1000), first.TimestampMs)
	assert.Equal(t, int64(2000), second.TimestampMs)
}

func TestSerial_DropsMalformedLines(t *testing.T) {
	payload := "1,2\r\nnoise\r\n\r\n3,4\r\n1,2,3\r\n5,6\r\n"
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener(payload)))
	require.NoError(t, dev.Connect())
	defer dev.Disconnect()

	var got []int64
	for range 3 {
		s, ok := dev.Read(true, time.Second)
		require.True(t, ok)
		got = append(got, s.TimestampMs)
	}
	assert.Equal(t, []int64{1, 3, 5}, got)

	_, ok := dev.Read(false, 0)
	assert.False(t, ok)

	stats := dev.Stats()
	assert.Equal(t, uint64(5), stats.Lines)
	assert.Equal(t, uint64(3), stats.Parsed)
	assert.Equal(t, uint64(2), stats.Malformed)
}

func TestSerial_FullQueueKeepsOrder(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&sb, "%d,1.5\n", i)
	}
	dev := New("COM_FAKE", 9600, 2, WithOpener(stringOpener(sb.String())))
	require.NoError(t, dev.Connect())
	defer dev.Disconnect()

	for i := 1; i <= 20; i++ {
		s, ok := dev.Read(true, time.Second)
		require.True(t, ok, "sample %d", i)
		assert.Equal(t, int64(i), s.TimestampMs)
	}
}

func TestSerial_ConnectError(t *testing.T) {
	boom := errors.New("no such device")
	dev := New("/dev/missing", 9600, 10, WithOpener(func(string, int, time.Duration) (io.ReadCloser, error) {
		return nil, boom
	}))

	err := dev.Connect()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.True(t, errors.Is(err, boom))

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "/dev/missing", connErr.Endpoint)
	assert.False(t, dev.IsConnected())
}

func TestSerial_ConnectTwice(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener("")))
	require.NoError(t, dev.Connect())
	defer dev.Disconnect()

	assert.Error(t, dev.Connect())
}

func TestSerial_DisconnectIdempotent(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener("")))
	assert.NoError(t, dev.Disconnect())

	require.NoError(t, dev.Connect())
	assert.NoError(t, dev.Disconnect())
	assert.NoError(t, dev.Disconnect())
	assert.False(t, dev.IsConnected())
}

func TestSerial_DisconnectBoundedWithStalledTransport(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	dev := New("COM_FAKE", 9600, 10,
		WithOpener(func(string, int, time.Duration) (io.ReadCloser, error) { return pr, nil }),
		WithTimeouts(0, 50*time.Millisecond),
	)
	require.NoError(t, dev.Connect())

	done := make(chan error, 1)
	go func() { done <- dev.Disconnect() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return with a stalled transport")
	}
}

func TestSerial_ReconnectDrainsStaleSamples(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10, WithOpener(stringOpener("1,1\n", "2,2\n")))

	require.NoError(t, dev.Connect())
	assert.Eventually(t, func() bool { return dev.Pending() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, dev.Disconnect())

	require.NoError(t, dev.Connect())
	defer dev.Disconnect()

	s, ok := dev.Read(true, time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), s.TimestampMs)
}

func TestRead_NonBlockingEmpty(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10)

	start := time.Now()
	_, ok := dev.Read(false, time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRead_BlockingTimeout(t *testing.T) {
	dev := New("COM_FAKE", 9600, 10)

	start := time.Now()
	_, ok := dev.Read(true, 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// idleReader behaves like a serial port whose read timeout keeps expiring.
type idleReader struct{}

func (idleReader) Read([]byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func TestCtxReader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &ctxReader{ctx: ctx, r: idleReader{}}

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 8))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("ctxReader did not observe cancellation")
	}
}

// countingReader returns no data and no error immediately, counting calls.
type countingReader struct {
	calls atomic.Int64
}

func (r *countingReader) Read([]byte) (int, error) {
	r.calls.Add(1)
	return 0, nil
}

func TestCtxReader_BacksOffOnEmptyReads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &countingReader{}
	r := &ctxReader{ctx: ctx, r: src}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Read(make([]byte, 8))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	// 100ms at one retry per backoff, with slack for scheduling.
	assert.LessOrEqual(t, src.calls.Load(), int64(100*time.Millisecond/emptyReadBackoff)+5)
	assert.GreaterOrEqual(t, src.calls.Load(), int64(2))
}
