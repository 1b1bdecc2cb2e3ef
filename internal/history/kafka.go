package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaRecorder publishes events to a Kafka topic, keyed by subject so one
// subject's feed stays ordered within a partition. Produces are asynchronous;
// delivery failures are logged, never returned.
type KafkaRecorder struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaRecorder connects to the given brokers and ensures the topic
// exists. Topic creation races with other instances are tolerated.
func NewKafkaRecorder(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaRecorder, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopics(ctx, 1, 1, nil, topic); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure history topic %q: %w", topic, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaRecorder{client: client, topic: topic, logger: logger}, nil
}

func (r *KafkaRecorder) Append(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.SubjectID.String()),
		Value: payload,
	}
	r.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			r.logger.Warn("history event delivery failed",
				"kind", string(event.Kind),
				"subject_id", event.SubjectID.String(),
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending produces and releases the client.
func (r *KafkaRecorder) Close(ctx context.Context) error {
	if err := r.client.Flush(ctx); err != nil {
		r.client.Close()
		return fmt.Errorf("flush history events: %w", err)
	}
	r.client.Close()
	return nil
}
