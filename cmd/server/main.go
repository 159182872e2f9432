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

	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/config"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/db"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/events"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/httpapi"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/memstore"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/reminders"
)

// storage bundles the repositories of one backend
type storage struct {
	loans        domain.LoanRepository
	installments domain.InstallmentRepository
	payments     domain.PaymentRepository
	txManager    domain.TransactionManager
	health       httpapi.HealthChecker
	close        func()
}

func main() {
	cfg := config.Load()

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx := context.Background()

	store, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize storage")
	}
	defer store.close()

	var (
		publishers events.Fanout
		operations httpapi.OperationLister
	)

	if cfg.RabbitMQ.Enabled {
		publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize RabbitMQ publisher")
		}
		defer publisher.Close()
		publishers = append(publishers, publisher)
	}

	if cfg.ClickHouse.Enabled {
		client, err := analytics.NewClient(ctx, cfg.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to ClickHouse")
		}
		defer client.Close()
		if err := client.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("failed to prepare ClickHouse schema")
		}
		operationRepo := analytics.NewOperationRepository(client)
		publishers = append(publishers, analytics.NewRecorder(operationRepo, logger))
		operations = operationRepo
		logger.WithField("host", cfg.ClickHouse.Host).Info("ClickHouse operation log enabled")
	}

	var publisher domain.EventPublisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	clock := domain.SystemClock{}
	loanService := domain.NewLoanService(
		store.loans,
		store.installments,
		store.payments,
		store.txManager,
		clock,
		logger,
		publisher,
	)
	logger.Info("domain services initialized")

	reminderJob, err := reminders.NewJob(cfg.Reminders.Schedule, loanService, clock, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule reminders")
	}
	reminderJob.Start()

	handler := httpapi.NewHandler(loanService, operations, clock, logger)
	if store.health != nil {
		handler = handler.WithHealthCheck(store.health)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("loan-service HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	reminderJob.Stop(shutdownCtx)
	logger.Info("loan-service stopped")
}

// openStorage connects the configured backend. PostgreSQL is migrated on startup.
func openStorage(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (*storage, error) {
	if cfg.Backend == config.StorageMemory {
		store := memstore.New()
		log.Warn("using in-memory storage; data is lost on restart")
		return &storage{
			loans:        store.Loans(),
			installments: store.Installments(),
			payments:     store.Payments(),
			txManager:    store,
			close:        func() {},
		}, nil
	}

	if cfg.Backend != config.StoragePostgres {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		loans:        db.NewLoanRepository(pool.Pool),
		installments: db.NewInstallmentRepository(pool.Pool),
		payments:     db.NewPaymentRepository(pool.Pool),
		txManager:    db.NewTransactionManager(pool.Pool, log),
		health:       pool,
		close:        pool.Close,
	}, nil
}
