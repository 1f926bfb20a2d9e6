package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestObserveLine(t *testing.T) {
	Init()

	parsed := testutil.ToFloat64(linkLines.WithLabelValues(lineParsed))
	malformed := testutil.ToFloat64(linkLines.WithLabelValues(lineMalformed))

	ObserveLine(true)
	ObserveLine(true)
	ObserveLine(false)

	assert.Equal(t, parsed+2, testutil.ToFloat64(linkLines.WithLabelValues(lineParsed)))
	assert.Equal(t, malformed+1, testutil.ToFloat64(linkLines.WithLabelValues(lineMalformed)))
}

func TestObserveLogWrite(t *testing.T) {
	Init()

	ok := testutil.ToFloat64(logWrites.WithLabelValues(resultSuccess))
	failed := testutil.ToFloat64(logWrites.WithLabelValues(resultError))

	ObserveLogWrite(nil)
	ObserveLogWrite(errors.New("disk full"))

	assert.Equal(t, ok+1, testutil.ToFloat64(logWrites.WithLabelValues(resultSuccess)))
	assert.Equal(t, failed+1, testutil.ToFloat64(logWrites.WithLabelValues(resultError)))
}

func TestGaugesAndCounters(t *testing.T) {
	Init()

	SetQueueDepth(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(queueDepth))

	before := testutil.ToFloat64(samplesTotal)
	IncSamples()
	assert.Equal(t, before+1, testutil.ToFloat64(samplesTotal))

	before = testutil.ToFloat64(publishDropped)
	IncPublishDropped()
	assert.Equal(t, before+1, testutil.ToFloat64(publishDropped))

	assert.NotPanics(t, func() {
		ObserveSessionStart(nil)
		ObserveSessionEnd(-time.Second)
		ObserveSessionEnd(3 * time.Second)
	})
}

func TestHandler(t *testing.T) {
	Init()
	ObserveLine(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "energymon_link_lines_total")
}
