package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bank-risk-audit/internal/metrics"

	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaNotifier publishes events as JSON records keyed by assessment id, so
// events for one assessment stay ordered within a partition.
type KafkaNotifier struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewKafkaNotifier(cfg KafkaConfig, logger *slog.Logger, m *metrics.Metrics) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("notify: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("notify: kafka topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RecordDeliveryTimeout(30 * time.Second),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: cfg.Topic, logger: logger, metrics: m}, nil
}

// Notify enqueues the event and returns without waiting for the broker.
// Delivery failures are reported from the produce callback.
func (n *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	rec := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(e.AssessmentID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	// The request context may be cancelled before the broker acks.
	n.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		n.metrics.IncNotifyFailure()
		n.logger.Error("notification publish failed",
			"event_id", e.ID,
			"type", e.Type,
			"assessment_id", e.AssessmentID,
			"topic", r.Topic,
			"err", err,
		)
	})
	return nil
}

// Close flushes buffered records and closes the client.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	err := n.client.Flush(ctx)
	n.client.Close()
	return err
}
