package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/config"
	"github.com/gilbertqld/terrace/pkg/backup"
	"github.com/gilbertqld/terrace/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database := flag.String("database", cfg.DatabasePath, "database file to back up or restore")
	dir := flag.String("dir", cfg.BackupDir, "directory holding backup archives")
	list := flag.Bool("list", false, "list existing backups and exit")
	restore := flag.String("restore", "", "backup archive to restore over the database")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	manager := backup.NewManager(logger, *dir, cfg.BackupRetentionDays)

	switch {
	case *list:
		backups, err := manager.List()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("no backups found")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%s\t%d bytes\t%s\n", b.Path, b.SizeBytes, b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil

	case *restore != "":
		if err := manager.Restore(ctx, *restore, *database); err != nil {
			return err
		}
		fmt.Printf("restored %s from %s\n", *database, *restore)
		return nil

	default:
		path, err := manager.Create(ctx, *database)
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n", path)

		pruned, err := manager.Prune(ctx)
		if err != nil {
			logger.Warn("Failed to prune old backups", zap.Error(err))
			return nil
		}
		if pruned > 0 {
			fmt.Printf("pruned %d old backups\n", pruned)
		}
		return nil
	}
}
