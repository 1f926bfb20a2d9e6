package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/itohio/energymon/pkg/config"
	"github.com/itohio/energymon/pkg/metrics"
	"github.com/itohio/energymon/pkg/sample"
)

const (
	// DefaultOutboxSize bounds the samples waiting to be published.
	DefaultOutboxSize = 1024

	publishTimeout    = 2 * time.Second
	disconnectQuiesce = 250 // ms
)

// Client is the subset of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload of one sample.
type Message struct {
	TimestampMs int64   `json:"timestamp_ms"`
	CurrentMA   float64 `json:"current_ma"`
}

// Publisher forwards samples to an MQTT topic without ever blocking the producer.
type Publisher struct {
	client Client
	topic  string
	outbox chan sample.Sample

	once sync.Once
	done chan struct{}
}

// New creates a publisher over an already connected client.
func New(client Client, topic string, outboxSize int) *Publisher {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Publisher{
		client: client,
		topic:  topic,
		outbox: make(chan sample.Sample, outboxSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the broker in cfg and returns the client and a func that disconnects it.
func Connect(cfg config.MQTTConfig) (mqtt.Client, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"broker": cfg.Broker,
		"topic":  cfg.Topic,
	}).Info("connected to MQTT broker")

	return client, func() { client.Disconnect(disconnectQuiesce) }, nil
}

// Offer queues s for publishing. When the outbox is full the sample is skipped and counted.
func (p *Publisher) Offer(s sample.Sample) {
	select {
	case p.outbox <- s:
	default:
		metrics.IncPublishDropped()
	}
}

// Run publishes queued samples until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	defer p.once.Do(func() { close(p.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.outbox:
			p.publish(s)
		}
	}
}

// Done is closed when Run returns.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) publish(s sample.Sample) {
	payload, err := json.Marshal(Message{TimestampMs: s.TimestampMs, CurrentMA: s.CurrentMA})
	if err != nil {
		logrus.Errorf("json marshal error (sample): %v", err)
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		logrus.Warnf("MQTT publish timed out on %s", p.topic)
		return
	}
	if err := token.Error(); err != nil {
		logrus.Warnf("MQTT publish error: %v", err)
	}
}
