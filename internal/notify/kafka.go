package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"jma-forecast/internal/config"
	"jma-forecast/internal/models"
	"jma-forecast/pkg/logging"
)

// messageWriter is the part of kafkago.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher announces refreshed forecasts on a Kafka topic, keyed by
// office code so updates for one office stay ordered.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *logging.StructuredLogger
}

// NewKafkaPublisher creates a producer for the configured topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.StructuredLogger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		// One message per refresh; do not hold it for a batch.
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, timeout: 10 * time.Second, logger: logger}
}

// PublishUpdate writes one ForecastUpdate message
func (p *KafkaPublisher) PublishUpdate(ctx context.Context, update models.ForecastUpdate) error {
	msg, err := serializeToMessage(update)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish forecast update %s: %w", update.OfficeCode, err)
	}

	p.logger.Debug(ctx, "[KAFKA_PUBLISHED] Forecast update published", logging.Fields{
		"office_code": update.OfficeCode,
		"rows":        update.RowCount,
	})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a ForecastUpdate into a Kafka message.
func serializeToMessage(update models.ForecastUpdate) (kafkago.Message, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(update.OfficeCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("forecast_updated")},
			{Key: "row_count", Value: []byte(strconv.Itoa(update.RowCount))},
			{Key: "fetched_at", Value: []byte(update.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
