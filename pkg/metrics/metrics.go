package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "energymon_"

	lineParsed    = "parsed"
	lineMalformed = "malformed"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	linkLines      *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	samplesTotal   prometheus.Counter
	logWrites      *prometheus.CounterVec
	sessionsTotal  *prometheus.CounterVec
	sessionLength  prometheus.Histogram
	publishDropped prometheus.Counter
)

// Init registers acquisition metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		linkLines = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "link_lines_total",
				Help: "Lines received from the serial link by parse result",
			},
			[]string{"result"},
		)
		queueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "link_queue_depth",
				Help: "Raw samples waiting in the link queue",
			},
		)
		samplesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_total",
				Help: "Calibrated samples appended to the session buffer",
			},
		)
		logWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "log_writes_total",
				Help: "Session log row writes by result",
			},
			[]string{"result"},
		)
		sessionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_total",
				Help: "Acquisition session starts by result",
			},
			[]string{"result"},
		)
		sessionLength = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "session_duration_seconds",
				Help:    "Duration of completed acquisition sessions",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		)
		publishDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_dropped_total",
				Help: "Samples not forwarded to the broker because the outbox was full",
			},
		)

		prometheus.MustRegister(
			linkLines,
			queueDepth,
			samplesTotal,
			logWrites,
			sessionsTotal,
			sessionLength,
			publishDropped,
		)
	})
}

// Handler returns the scrape handler, registering metrics first if needed.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveLine counts one received line as parsed or malformed.
func ObserveLine(parsed bool) {
	if linkLines == nil {
		return
	}
	if parsed {
		linkLines.WithLabelValues(lineParsed).Inc()
	} else {
		linkLines.WithLabelValues(lineMalformed).Inc()
	}
}

// SetQueueDepth records the number of samples pending in the link queue.
func SetQueueDepth(n int) {
	if queueDepth != nil {
		queueDepth.Set(float64(n))
	}
}

// IncSamples counts one buffered sample.
func IncSamples() {
	if samplesTotal != nil {
		samplesTotal.Inc()
	}
}

// ObserveLogWrite counts one session log write.
func ObserveLogWrite(err error) {
	if logWrites == nil {
		return
	}
	if err != nil {
		logWrites.WithLabelValues(resultError).Inc()
		return
	}
	logWrites.WithLabelValues(resultSuccess).Inc()
}

// ObserveSessionStart counts one start attempt.
func ObserveSessionStart(err error) {
	if sessionsTotal == nil {
		return
	}
	if err != nil {
		sessionsTotal.WithLabelValues(resultError).Inc()
		return
	}
	sessionsTotal.WithLabelValues(resultSuccess).Inc()
}

// ObserveSessionEnd records the length of a finished session.
func ObserveSessionEnd(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if sessionLength != nil {
		sessionLength.Observe(d.Seconds())
	}
}

// IncPublishDropped counts one sample skipped by the broker publisher.
func IncPublishDropped() {
	if publishDropped != nil {
		publishDropped.Inc()
	}
}
