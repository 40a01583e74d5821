// Command server runs the portfolio API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	migrations "github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/gilbertqld/terrace/config"
	assetrepo "github.com/gilbertqld/terrace/internal/repositories/asset"
	projectrepo "github.com/gilbertqld/terrace/internal/repositories/project"
	transactionrepo "github.com/gilbertqld/terrace/internal/repositories/transaction"
	"github.com/gilbertqld/terrace/pkg/database"
	"github.com/gilbertqld/terrace/pkg/events"
	"github.com/gilbertqld/terrace/pkg/kafka"
	"github.com/gilbertqld/terrace/pkg/logging"
	"github.com/gilbertqld/terrace/pkg/ratelimit"
	assetroutes "github.com/gilbertqld/terrace/pkg/routes/asset"
	"github.com/gilbertqld/terrace/pkg/routes/health"
	projectroutes "github.com/gilbertqld/terrace/pkg/routes/project"
	transactionroutes "github.com/gilbertqld/terrace/pkg/routes/transaction"
	"github.com/gilbertqld/terrace/pkg/security"
)

const version = "2.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if cfg.DatabaseMigrationOnStart {
		if err := runMigrations(cfg, logger); err != nil {
			logger.Fatal("Failed to run database migrations", zap.Error(err))
		}
	}

	assetRepository := assetrepo.NewRepository(db, logger)
	projectRepository := projectrepo.NewRepository(db, logger)
	transactionRepository := transactionrepo.NewRepository(db, logger)

	var emitter *events.Emitter
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

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(security.HeadersMiddleware())
	e.Use(ratelimit.New(cfg.RateLimitPerHour).Middleware())

	checker := health.NewChecker(db, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	assetroutes.NewHandler(assetRepository, emitter).Register(api.Group("/assets"))
	projectroutes.NewHandler(projectRepository, emitter).Register(api.Group("/projects"))
	transactionroutes.NewHandler(transactionRepository, emitter).Register(api.Group("/transactions"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	checker.SetReady(true)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("Starting server", zap.String("addr", addr), zap.String("app", cfg.AppName))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down cleanly", zap.Error(err))
	}
}

// runMigrations applies the versioned schema migrations to the portfolio
// database. A separate connection is used so the migration driver owns it.
func runMigrations(cfg config.Config, logger *zap.Logger) error {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrations.NewWithDatabaseInstance(
		"file://"+cfg.DatabaseMigrationFolderPath, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrations.ErrNoChange) {
			logger.Info("No new database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied")
	return nil
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// errorHandler translates httperror values into JSON responses and keeps
// everything else a plain 500.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		logger.Error("api is returning an error", zap.Error(err))
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		}

		_ = c.JSON(code, ErrorResponse{
			Message: message,
			Meta:    meta,
		})
	}
}
