// Package backup creates and restores compressed copies of the portfolio
// database, with age-based retention for scheduled runs.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/pkg/security"
	"github.com/gilbertqld/terrace/pkg/tracing"
)

const timestampFormat = "20060102_150405"

// Info describes one backup file on disk.
type Info struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager writes gzip-compressed database backups into a directory and
// prunes backups past the retention window.
type Manager struct {
	logger        *zap.Logger
	dir           string
	retentionDays int
	now           func() time.Time
}

// NewManager creates a backup manager. retentionDays <= 0 disables pruning.
func NewManager(logger *zap.Logger, dir string, retentionDays int) *Manager {
	return &Manager{
		logger:        logger,
		dir:           dir,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Create copies the database file into the backup directory as
// backup_<timestamp>.db.gz and returns the backup path.
func (m *Manager) Create(ctx context.Context, databasePath string) (string, error) {
	_, span := tracing.StartSpan(ctx, "backup.Manager.Create")
	defer span.End()

	if _, err := os.Stat(databasePath); err != nil {
		return "", fmt.Errorf("database file not found: %s", databasePath)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(m.dir,
		fmt.Sprintf("backup_%s.db.gz", m.now().Format(timestampFormat)))

	in, err := os.Open(databasePath)
	if err != nil {
		return "", fmt.Errorf("failed to open database file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("failed to compress backup: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("failed to finish backup: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("failed to finish backup: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return "", err
	}
	m.logger.Info("Backup created",
		zap.String("path", backupPath),
		zap.Int64("size_bytes", info.Size()),
	)
	return backupPath, nil
}

// Restore overwrites the database file with the contents of a backup,
// decompressing when the backup is gzip-compressed. A bare filename is
// sanitized and resolved inside the backup directory.
func (m *Manager) Restore(ctx context.Context, backupPath, databasePath string) error {
	_, span := tracing.StartSpan(ctx, "backup.Manager.Restore")
	defer span.End()

	if filepath.Dir(backupPath) == "." {
		backupPath = filepath.Join(m.dir, security.SanitizeFilename(backupPath))
	}

	in, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup file not found: %s", backupPath)
	}
	defer in.Close()

	var reader io.Reader = in
	if strings.HasSuffix(backupPath, ".gz") {
		gz, err := gzip.NewReader(in)
		if err != nil {
			return fmt.Errorf("failed to decompress backup: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	out, err := os.Create(databasePath)
	if err != nil {
		return fmt.Errorf("failed to open database file for restore: %w", err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return fmt.Errorf("failed to restore database: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to restore database: %w", err)
	}

	m.logger.Info("Database restored",
		zap.String("backup", backupPath),
		zap.String("database", databasePath),
	)
	return nil
}

// Prune deletes backups older than the retention window and returns how
// many were removed.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	_, span := tracing.StartSpan(ctx, "backup.Manager.Prune")
	defer span.End()

	if m.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := m.now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, err
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(m.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("failed to remove old backup %s: %w", path, err)
			}
			m.logger.Info("Removed old backup", zap.String("path", path))
			removed++
		}
	}
	return removed, nil
}

// List returns the backups on disk, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.dir, entry.Name()),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	for i, j := 0, len(backups)-1; i < j; i, j = i+1, j-1 {
		backups[i], backups[j] = backups[j], backups[i]
	}
	return backups, nil
}
