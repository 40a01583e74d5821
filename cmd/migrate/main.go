// Command migrate upgrades a v1 portfolio database to the v2 schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/config"
	"github.com/gilbertqld/terrace/pkg/events"
	"github.com/gilbertqld/terrace/pkg/kafka"
	"github.com/gilbertqld/terrace/pkg/logging"
	"github.com/gilbertqld/terrace/pkg/migrate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sourcePath := flag.String("source", cfg.DatabasePath, "path to the v1 database file")
	outputPath := flag.String("output", "", "path for the migrated database (default <source>_v2)")
	schemaPath := flag.String("schema", cfg.SchemaPath, "path to the v2 schema DDL")
	replace := flag.Bool("replace", false, "overwrite the source file in place after validation")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	var emitter migrate.RunEmitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	report, err := migrate.New(logger, emitter).Run(context.Background(), migrate.Options{
		SourcePath: *sourcePath,
		OutputPath: *outputPath,
		SchemaPath: *schemaPath,
		Replace:    *replace,
	})
	if err != nil {
		logger.Error("Migration failed", zap.Error(err))
		if report != nil && report.BackupPath != "" {
			fmt.Fprintf(os.Stderr, "migration failed, source restored from %s: %v\n", report.BackupPath, err)
		} else {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Migration complete: %s\n", report.ResultPath)
	fmt.Printf("  assets copied:      %d\n", report.AssetsCopied)
	fmt.Printf("  assets synthesized: %d\n", report.AssetsSynthesized)
	fmt.Printf("  projects:           %d\n", report.ProjectsMigrated)
	fmt.Printf("  transactions:       %d\n", report.TransactionsMigrated)
	fmt.Printf("  backup:             %s\n", report.BackupPath)
}
