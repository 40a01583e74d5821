// Package migrate implements the v1 -> v2 schema migration engine: backup,
// target initialization from an external DDL artifact, asset copy or
// synthesis, project and transaction migration with foreign-key resolution,
// integrity validation, and atomic commit with file-level rollback.
package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

// State names the orchestration phases of a migration run.
type State string

const (
	StateNotStarted           State = "not_started"
	StateBackedUp             State = "backed_up"
	StateTargetInitialized    State = "target_initialized"
	StateAssetsCopied         State = "assets_copied"
	StateProjectsMigrated     State = "projects_migrated"
	StateTransactionsMigrated State = "transactions_migrated"
	StateValidated            State = "validated"
	StateCommitted            State = "committed"
	StateRolledBack           State = "rolled_back"
)

const backupTimestampFormat = "20060102150405"

// Options configures a migration run.
type Options struct {
	// SourcePath is the v1 database file.
	SourcePath string
	// OutputPath is the destination file when Replace is false. Empty means
	// "<source>_v2.<ext>" next to the source.
	OutputPath string
	// SchemaPath is the destination DDL artifact.
	SchemaPath string
	// Replace overwrites the source file in place after validation.
	Replace bool
}

// Report summarizes a migration run.
type Report struct {
	RunID                string    `json:"run_id"`
	SourcePath           string    `json:"source_path"`
	BackupPath           string    `json:"backup_path,omitempty"`
	ResultPath           string    `json:"result_path,omitempty"`
	AssetsCopied         int       `json:"assets_copied"`
	AssetsSynthesized    int       `json:"assets_synthesized"`
	ProjectsMigrated     int       `json:"projects_migrated"`
	TransactionsMigrated int       `json:"transactions_migrated"`
	State                State     `json:"state"`
	StartedAt            time.Time `json:"started_at"`
	CompletedAt          time.Time `json:"completed_at,omitempty"`
}

// RunEmitter publishes migration lifecycle events. Optional.
type RunEmitter interface {
	EmitMigrationCompleted(ctx context.Context, report *Report) error
	EmitMigrationFailed(ctx context.Context, runID string, runErr error) error
}

// Migrator orchestrates a single-threaded, all-or-nothing migration run.
type Migrator struct {
	logger  *zap.Logger
	emitter RunEmitter
}

// New creates a migrator. emitter may be nil.
func New(logger *zap.Logger, emitter RunEmitter) *Migrator {
	return &Migrator{logger: logger, emitter: emitter}
}

// Run executes the migration. On any failure after the backup step the
// partially-built target is deleted, the source is restored from the backup,
// and the original error is returned unmodified. The backup file is never
// deleted; it is retained as an audit artifact.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "migrate.Migrator.Run")
	defer span.End()

	report := &Report{
		RunID:      uuid.New().String(),
		SourcePath: opts.SourcePath,
		State:      StateNotStarted,
		StartedAt:  time.Now().UTC(),
	}
	log := m.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("source", opts.SourcePath),
	)

	// Precondition checks happen before any destructive action.
	if _, err := os.Stat(opts.SourcePath); err != nil {
		return report, fmt.Errorf("source database not found: %s", opts.SourcePath)
	}
	src, err := database.Open(opts.SourcePath)
	if err != nil {
		return report, err
	}
	defer src.Close()
	for _, table := range []string{"projects", "transactions"} {
		exists, err := database.TableExists(ctx, src, table)
		if err != nil {
			return report, err
		}
		if !exists {
			return report, fmt.Errorf("source database must contain projects and transactions tables")
		}
	}

	backupPath := opts.SourcePath + ".backup." + report.StartedAt.Format(backupTimestampFormat)
	if err := copyFile(opts.SourcePath, backupPath); err != nil {
		return report, fmt.Errorf("failed to back up source database: %w", err)
	}
	report.BackupPath = backupPath
	m.advance(log, report, StateBackedUp)

	tmpPath := opts.SourcePath + ".v2.tmp"
	resultPath, err := m.runPhases(ctx, log, report, src, opts, tmpPath)
	if err != nil {
		log.Error("Migration failed, rolling back", zap.Error(err))
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Error("Failed to remove temporary target", zap.Error(rmErr))
		}
		if restoreErr := copyFile(backupPath, opts.SourcePath); restoreErr != nil {
			log.Error("Failed to restore source from backup",
				zap.String("backup", backupPath), zap.Error(restoreErr))
		}
		m.advance(log, report, StateRolledBack)
		if m.emitter != nil {
			if emitErr := m.emitter.EmitMigrationFailed(ctx, report.RunID, err); emitErr != nil {
				log.Warn("Failed to emit migration.failed event", zap.Error(emitErr))
			}
		}
		return report, err
	}

	report.ResultPath = resultPath
	report.CompletedAt = time.Now().UTC()
	log.Info("Migration completed",
		zap.String("result", resultPath),
		zap.Int("assets_copied", report.AssetsCopied),
		zap.Int("assets_synthesized", report.AssetsSynthesized),
		zap.Int("projects", report.ProjectsMigrated),
		zap.Int("transactions", report.TransactionsMigrated),
	)
	if m.emitter != nil {
		if emitErr := m.emitter.EmitMigrationCompleted(ctx, report); emitErr != nil {
			log.Warn("Failed to emit migration.completed event", zap.Error(emitErr))
		}
	}
	return report, nil
}

// runPhases executes everything between backup and commit. Any returned
// error triggers file-level rollback in Run.
func (m *Migrator) runPhases(
	ctx context.Context,
	log *zap.Logger,
	report *Report,
	src *sqlx.DB,
	opts Options,
	tmpPath string,
) (string, error) {
	schemaSQL, err := LoadSchema(opts.SchemaPath)
	if err != nil {
		return "", err
	}

	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove stale temporary target: %w", err)
	}
	dst, err := database.OpenUnchecked(tmpPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := dst.ExecContext(ctx, schemaSQL); err != nil {
		return "", fmt.Errorf("failed to apply destination schema: %w", err)
	}
	m.advance(log, report, StateTargetInitialized)

	// Each copy phase commits once at its end.
	var assetIDs map[int64]int64
	err = m.inTx(ctx, dst, func(tx *sqlx.Tx) error {
		var copied int
		assetIDs, copied, err = m.copyAssets(ctx, src, tx)
		report.AssetsCopied = copied
		return err
	})
	if err != nil {
		return "", err
	}
	m.advance(log, report, StateAssetsCopied)

	assetNames := map[string]int64{}
	var projectLookup map[string]int64
	err = m.inTx(ctx, dst, func(tx *sqlx.Tx) error {
		// Synthesis is the fallback when no formal asset table existed.
		if len(assetIDs) == 0 {
			relatedAssetCol, err := resolveRelatedAssetColumn(ctx, src)
			if err != nil {
				return err
			}
			if relatedAssetCol != "" {
				assetNames, err = m.synthesizeAssets(ctx, src, tx, relatedAssetCol)
				if err != nil {
					return err
				}
			}
		}
		report.AssetsSynthesized = len(assetNames)

		var migrated int
		projectLookup, migrated, err = m.migrateProjects(ctx, src, tx, assetNames, assetIDs)
		report.ProjectsMigrated = migrated
		return err
	})
	if err != nil {
		return "", err
	}
	m.advance(log, report, StateProjectsMigrated)

	err = m.inTx(ctx, dst, func(tx *sqlx.Tx) error {
		migrated, err := m.migrateTransactions(ctx, src, tx, assetNames, assetIDs, projectLookup)
		report.TransactionsMigrated = migrated
		return err
	})
	if err != nil {
		return "", err
	}
	m.advance(log, report, StateTransactionsMigrated)

	if err := m.validate(ctx, src, dst); err != nil {
		return "", err
	}
	m.advance(log, report, StateValidated)

	// Release the sqlite handle before the file-level commit.
	if err := dst.Close(); err != nil {
		return "", err
	}

	if opts.Replace {
		if err := os.Rename(tmpPath, opts.SourcePath); err != nil {
			return "", fmt.Errorf("failed to replace source database: %w", err)
		}
		m.advance(log, report, StateCommitted)
		return opts.SourcePath, nil
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = defaultOutputPath(opts.SourcePath)
	}
	// Never silently overwrite: an existing output is deleted explicitly.
	if _, err := os.Stat(outputPath); err == nil {
		log.Warn("Output file exists, deleting", zap.String("output", outputPath))
		if err := os.Remove(outputPath); err != nil {
			return "", fmt.Errorf("failed to delete existing output: %w", err)
		}
	}
	if err := moveFile(tmpPath, outputPath); err != nil {
		return "", fmt.Errorf("failed to move target into place: %w", err)
	}
	m.advance(log, report, StateCommitted)
	return outputPath, nil
}

func (m *Migrator) inTx(ctx context.Context, dst *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := dst.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin phase transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit phase: %w", err)
	}
	return nil
}

func (m *Migrator) advance(log *zap.Logger, report *Report, state State) {
	report.State = state
	log.Info("Migration phase complete", zap.String("state", string(state)))
}

func defaultOutputPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	return strings.TrimSuffix(sourcePath, ext) + "_v2" + ext
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveFile renames, falling back to copy+remove when the output lives on a
// different filesystem.
func moveFile(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	if err := copyFile(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}
