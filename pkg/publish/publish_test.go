package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/energymon/pkg/metrics"
	"github.com/itohio/energymon/pkg/sample"
)

// doneToken is an already completed token.
type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *doneToken) Error() error { return t.err }

var _ mqtt.Token = (*doneToken)(nil)

func droppedTotal(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "energymon_publish_dropped_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("publish_dropped_total not registered")
	return 0
}

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, payload: payload.([]byte)})
	return &doneToken{err: c.err}
}

func (c *fakeClient) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]published, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestPublisher_PublishesInOrder(t *testing.T) {
	client := &fakeClient{}
	p := New(client, "energymon/samples", 8)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	for i := range 3 {
		p.Offer(sample.Sample{TimestampMs: int64(i), CurrentMA: float64(i) + 0.5})
	}

	require.Eventually(t, func() bool { return len(client.Messages()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	for i, m := range client.Messages() {
		assert.Equal(t, "energymon/samples", m.topic)
		var msg Message
		require.NoError(t, json.Unmarshal(m.payload, &msg))
		assert.Equal(t, Message{TimestampMs: int64(i), CurrentMA: float64(i) + 0.5}, msg)
	}
	assert.JSONEq(t, `{"timestamp_ms":0,"current_ma":0.5}`, string(client.Messages()[0].payload))
}

func TestPublisher_OfferNeverBlocks(t *testing.T) {
	metrics.Init()
	before := droppedTotal(t)

	p := New(&fakeClient{}, "t", 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 10 {
			p.Offer(sample.Sample{TimestampMs: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Offer blocked with a full outbox")
	}
	assert.Equal(t, before+8, droppedTotal(t))
}

func TestPublisher_ErrorDoesNotStopRun(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := New(client, "t", 4)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.Offer(sample.Sample{TimestampMs: 1})
	p.Offer(sample.Sample{TimestampMs: 2})
	require.Eventually(t, func() bool { return len(client.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
