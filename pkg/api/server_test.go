package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/energymon/pkg/acquire"
	"github.com/itohio/energymon/pkg/analysis"
	"github.com/itohio/energymon/pkg/calib"
	"github.com/itohio/energymon/pkg/link"
	"github.com/itohio/energymon/pkg/sample"
)

type fakeAcquirer struct {
	mu       sync.Mutex
	state    acquire.State
	startErr error
	cal      calib.State
	zeroN    int
	samples  []sample.Sample
	subs     []chan sample.Sample
	subbed   chan struct{}
}

func newFake() *fakeAcquirer {
	return &fakeAcquirer{
		cal:    calib.State{Scale: 1},
		subbed: make(chan struct{}, 1),
	}
}

func (f *fakeAcquirer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.state != acquire.Idle {
		return acquire.ErrRunning
	}
	f.state = acquire.Running
	return nil
}

func (f *fakeAcquirer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = acquire.Idle
	return nil
}

func (f *fakeAcquirer) CalibrateZero(n int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != acquire.Idle {
		return 0, acquire.ErrRunning
	}
	f.zeroN = n
	f.cal.OffsetMA = 13
	return 4, nil
}

func (f *fakeAcquirer) CalibrateScale(measuredA, sensorMA float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cal.Scale = measuredA * 1000 / sensorMA
}

func (f *fakeAcquirer) Calibration() calib.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cal
}

func (f *fakeAcquirer) State() acquire.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAcquirer) Summarize() (analysis.Summary, bool) {
	if len(f.samples) == 0 {
		return analysis.Summary{}, false
	}
	return analysis.Summarize(sample.Currents(f.samples), 5, 50), true
}

func (f *fakeAcquirer) SamplesSince(n int) []sample.Sample {
	if n >= len(f.samples) {
		return []sample.Sample{}
	}
	return f.samples[n:]
}

func (f *fakeAcquirer) Subscribe(bufSize int) (<-chan sample.Sample, func()) {
	ch := make(chan sample.Sample, bufSize)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	f.subbed <- struct{}{}
	return ch, func() {}
}

func (f *fakeAcquirer) LogPath() string { return "logs/dev.csv" }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestStartStop(t *testing.T) {
	f := newFake()
	h := New(f).Handler()

	rec := do(t, h, http.MethodPost, "/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "logs/dev.csv", st.LogPath)

	rec = do(t, h, http.MethodPost, "/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idle"`)

	rec = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartConnectionError(t *testing.T) {
	f := newFake()
	f.startErr = &link.ConnectionError{Endpoint: "COM6", Err: errors.New("access denied")}

	rec := do(t, New(f).Handler(), http.MethodPost, "/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "COM6")
}

func TestCalibrateZero(t *testing.T) {
	f := newFake()
	h := New(f).Handler()

	rec := do(t, h, http.MethodPost, "/calibrate/zero", `{"samples": 50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, f.zeroN)
	var resp zeroResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Collected)
	assert.Equal(t, 13.0, resp.OffsetMA)

	rec = do(t, h, http.MethodPost, "/calibrate/zero", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.zeroN)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/calibrate/zero", `{"samples": -1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/calibrate/zero", `{`).Code)

	f.state = acquire.Running
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/calibrate/zero", "").Code)
}

func TestCalibrateScale(t *testing.T) {
	f := newFake()
	h := New(f).Handler()

	rec := do(t, h, http.MethodPut, "/calibrate/scale", `{"measured_a": 2.0, "sensor_ma": 1950}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cal calib.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cal))
	assert.InDelta(t, 1.0256, cal.Scale, 1e-3)

	rec = do(t, h, http.MethodPut, "/calibrate/scale", `{"measured_a": 2.0, "sensor_ma": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/calibration", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scale"`)
}

func TestSummaryAndSamples(t *testing.T) {
	f := newFake()
	h := New(f).Handler()

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/summary", "").Code)

	f.samples = []sample.Sample{
		{TimestampMs: 1, CurrentMA: 100},
		{TimestampMs: 2, CurrentMA: 200},
		{TimestampMs: 3, CurrentMA: 300},
	}

	rec := do(t, h, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum analysis.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 200.0, sum.AvgMA)

	rec = do(t, h, http.MethodGet, "/samples?since=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []sample.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, f.samples[1:], got)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/samples?since=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/samples?since=-2", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	rec := do(t, New(newFake()).Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStream(t *testing.T) {
	f := newFake()
	srv := httptest.NewServer(New(f).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-f.subbed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not subscribe")
	}

	f.mu.Lock()
	f.subs[0] <- sample.Sample{TimestampMs: 1000, CurrentMA: 12.5}
	f.mu.Unlock()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got sample.Sample
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sample.Sample{TimestampMs: 1000, CurrentMA: 12.5}, got)
}

func TestServe_GracefulShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(newFake()).Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
