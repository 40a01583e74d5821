// Package events handles event emission for migration runs and record
// lifecycle changes.
package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/kafka"
	"github.com/gilbertqld/terrace/pkg/migrate"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

const (
	EventTypeMigrationCompleted = "migration.completed"
	EventTypeMigrationFailed    = "migration.failed"
	EventTypeRecordCreated      = "record.created"
	EventTypeRecordUpdated      = "record.updated"
	EventTypeRecordDeleted      = "record.deleted"
)

// Emitter publishes portfolio events through the Kafka producer. It
// implements migrate.RunEmitter.
type Emitter struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger *zap.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitMigrationCompleted emits a migration.completed event
func (e *Emitter) EmitMigrationCompleted(ctx context.Context, report *migrate.Report) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMigrationCompleted")
	defer span.End()

	event := &kafka.MigrationEvent{
		EventType:            EventTypeMigrationCompleted,
		RunID:                report.RunID,
		SourcePath:           report.SourcePath,
		ResultPath:           report.ResultPath,
		AssetsCopied:         report.AssetsCopied,
		AssetsSynthesized:    report.AssetsSynthesized,
		ProjectsMigrated:     report.ProjectsMigrated,
		TransactionsMigrated: report.TransactionsMigrated,
	}

	if err := e.producer.PublishMigrationEvent(ctx, event); err != nil {
		e.logger.Error("Failed to emit migration.completed event", zap.Error(err))
		return err
	}
	return nil
}

// EmitMigrationFailed emits a migration.failed event
func (e *Emitter) EmitMigrationFailed(ctx context.Context, runID string, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMigrationFailed")
	defer span.End()

	event := &kafka.MigrationEvent{
		EventType: EventTypeMigrationFailed,
		RunID:     runID,
		Error:     runErr.Error(),
	}

	if err := e.producer.PublishMigrationEvent(ctx, event); err != nil {
		e.logger.Error("Failed to emit migration.failed event", zap.Error(err))
		return err
	}
	return nil
}

// EmitRecordCreated emits a record.created event
func (e *Emitter) EmitRecordCreated(ctx context.Context, recordType string, recordID int64, record any) error {
	return e.emitRecord(ctx, EventTypeRecordCreated, recordType, recordID, record)
}

// EmitRecordUpdated emits a record.updated event
func (e *Emitter) EmitRecordUpdated(ctx context.Context, recordType string, recordID int64, record any) error {
	return e.emitRecord(ctx, EventTypeRecordUpdated, recordType, recordID, record)
}

// EmitRecordDeleted emits a record.deleted event
func (e *Emitter) EmitRecordDeleted(ctx context.Context, recordType string, recordID int64) error {
	return e.emitRecord(ctx, EventTypeRecordDeleted, recordType, recordID, nil)
}

func (e *Emitter) emitRecord(ctx context.Context, eventType, recordType string, recordID int64, record any) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitRecord")
	defer span.End()

	var data json.RawMessage
	if record != nil {
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		data = encoded
	}

	event := &kafka.RecordEvent{
		EventType:  eventType,
		RecordType: recordType,
		RecordID:   recordID,
		Data:       data,
	}

	if err := e.producer.PublishRecordEvent(ctx, event); err != nil {
		e.logger.Error("Failed to emit record event",
			zap.String("event_type", eventType),
			zap.String("record_type", recordType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
