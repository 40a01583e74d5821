// Package kafka handles event publication to the portfolio event stream.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger *zap.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MigrationEvent describes the outcome of a schema migration run
type MigrationEvent struct {
	EventType            string    `json:"event_type"` // migration.completed, migration.failed
	RunID                string    `json:"run_id"`
	SourcePath           string    `json:"source_path,omitempty"`
	ResultPath           string    `json:"result_path,omitempty"`
	AssetsCopied         int       `json:"assets_copied,omitempty"`
	AssetsSynthesized    int       `json:"assets_synthesized,omitempty"`
	ProjectsMigrated     int       `json:"projects_migrated,omitempty"`
	TransactionsMigrated int       `json:"transactions_migrated,omitempty"`
	Error                string    `json:"error,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// RecordEvent describes a lifecycle change of a portfolio record
type RecordEvent struct {
	EventType  string          `json:"event_type"` // record.created, record.updated, record.deleted
	RecordType string          `json:"record_type"`
	RecordID   int64           `json:"record_id"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PublishMigrationEvent publishes a migration lifecycle event to Kafka
func (p *Producer) PublishMigrationEvent(ctx context.Context, event *MigrationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMigrationEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "run_id", Value: []byte(event.RunID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish migration event",
			zap.String("event_type", event.EventType),
			zap.String("run_id", event.RunID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("Published migration event",
		zap.String("event_type", event.EventType),
		zap.String("run_id", event.RunID),
	)
	return nil
}

// PublishRecordEvent publishes a record lifecycle event to Kafka
func (p *Producer) PublishRecordEvent(ctx context.Context, event *RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecordEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RecordType),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "record_type", Value: []byte(event.RecordType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish record event",
			zap.String("event_type", event.EventType),
			zap.String("record_type", event.RecordType),
			zap.Int64("record_id", event.RecordID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("Published record event",
		zap.String("event_type", event.EventType),
		zap.String("record_type", event.RecordType),
		zap.Int64("record_id", event.RecordID),
	)
	return nil
}
