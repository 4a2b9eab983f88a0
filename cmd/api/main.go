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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cimillas/partmarket/internal/anchor"
	"github.com/cimillas/partmarket/internal/app"
	"github.com/cimillas/partmarket/internal/audit"
	"github.com/cimillas/partmarket/internal/clock"
	"github.com/cimillas/partmarket/internal/config"
	"github.com/cimillas/partmarket/internal/signer"
	"github.com/cimillas/partmarket/internal/storage/memory"
	"github.com/cimillas/partmarket/internal/storage/postgres"
	transporthttp "github.com/cimillas/partmarket/internal/transport/http"
	"github.com/cimillas/partmarket/migrations"
)

// ledgerStore is what the services and the anchor worker need from a backend.
type ledgerStore interface {
	app.Store
	anchor.Source
}

func main() {
	envPath, envErr := config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	switch {
	case envErr != nil:
		logger.Warn("failed to load .env", zap.Error(envErr))
	case envPath == "":
		logger.Warn(".env not found in current or parent directories")
	default:
		logger.Info("loaded env", zap.String("path", envPath))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(stopCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	worker, err := newAnchorWorker(stopCtx, cfg, store, logger)
	if err != nil {
		return err
	}

	server, sweeper := newServer(cfg, store, worker, logger)
	go sweeper.Run(stopCtx)
	if worker != nil {
		go worker.Run(stopCtx)
	}

	logger.Info("api listening",
		zap.String("port", cfg.HTTP.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("anchor", cfg.Anchor.Driver),
	)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// newServer wires the services over store and returns the HTTP server and
// the expiry sweeper. worker may be nil when anchoring is off.
func newServer(cfg *config.Config, store ledgerStore, worker *anchor.Worker, logger *zap.Logger) (*http.Server, *app.Sweeper) {
	var ledgerOpts []app.LedgerOption
	if worker != nil {
		ledgerOpts = append(ledgerOpts, app.WithNotifier(worker))
	}

	clk := clock.NewSystem()
	verifier := signer.EIP191{}
	ledger := app.NewLedger(store, audit.Checker{}, logger.Named("ledger"), ledgerOpts...)

	items := app.NewItemService(store, ledger, verifier, clk)
	listings := app.NewListingService(store, ledger, verifier, clk)
	reservations := app.NewReservationService(store, ledger, verifier, clk,
		app.WithReservationTTL(cfg.Reservation.TTL),
		app.WithReservationLogger(logger.Named("reservations")),
	)
	gifts := app.NewGiftService(store, ledger, verifier, clk,
		app.WithGiftTTL(cfg.Gift.TTL),
		app.WithGiftLogger(logger.Named("gifts")),
	)

	router := transporthttp.NewRouter(transporthttp.Services{
		Items:        items,
		Parts:        app.NewPartRegistry(store),
		Listings:     listings,
		Reservations: reservations,
		Gifts:        gifts,
		Ledger:       ledger,
		Health:       ledger,
	})
	handler := transporthttp.RequestLogger(
		transporthttp.CORS(cfg.CORSOriginList(), router, logger.Named("cors")),
		logger.Named("http"),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := app.NewSweeper(cfg.Sweep.Interval, logger.Named("sweeper"), reservations, gifts)
	return server, sweeper
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledgerStore, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.New(), func() {}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(startupCtx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := migrations.Apply(startupCtx, pool, logger.Named("migrations")); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func newAnchorWorker(ctx context.Context, cfg *config.Config, source anchor.Source, logger *zap.Logger) (*anchor.Worker, error) {
	var anchorer anchor.Anchorer
	switch cfg.Anchor.Driver {
	case config.AnchorNone:
		return nil, nil
	case config.AnchorRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		anchorer = anchor.NewRedisAnchor(client, cfg.Redis.Stream)
	case config.AnchorMinIO:
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		m := anchor.NewMinIOAnchor(client, cfg.MinIO.Bucket)
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		anchorer = m
	default:
		return nil, fmt.Errorf("unknown anchor driver %q", cfg.Anchor.Driver)
	}
	return anchor.NewWorker(source, anchorer, cfg.Anchor.Interval, cfg.Anchor.BatchSize, logger.Named("anchor")), nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
