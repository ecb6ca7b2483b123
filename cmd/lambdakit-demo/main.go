// Package main initializes and runs the lambdakit demo service.
//
// It acts as the composition root: it loads configuration, connects the
// chosen idempotency backend, wires the feature flag client and serves the
// REST API together with the observability endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	goredis "github.com/redis/go-redis/v9"

	"github.com/julianobarbosa/lambdakit/featureflags"
	"github.com/julianobarbosa/lambdakit/featureflags/redisstore"
	"github.com/julianobarbosa/lambdakit/idempotency"
	dynamobackend "github.com/julianobarbosa/lambdakit/idempotency/persistence/dynamo"
	postgresbackend "github.com/julianobarbosa/lambdakit/idempotency/persistence/postgres"
	redisbackend "github.com/julianobarbosa/lambdakit/idempotency/persistence/redis"
	"github.com/julianobarbosa/lambdakit/internal/config"
	"github.com/julianobarbosa/lambdakit/internal/database"
	"github.com/julianobarbosa/lambdakit/internal/demoapi"
	"github.com/julianobarbosa/lambdakit/internal/logger"
	"github.com/julianobarbosa/lambdakit/internal/observability"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	ctx := context.Background()

	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Options{
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		Service:     cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(log)
	cfg.LogConfig(log)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup (idempotency backend + health checkers)
	// -------------------------------------------------------------------------
	var (
		backend     idempotency.Backend
		checkers    []observability.Checker
		redisClient *goredis.Client
	)

	connectRedis := func() (*goredis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		opts, err := cfg.Redis.Options()
		if err != nil {
			return nil, fmt.Errorf("failed to build redis options: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = client
		checkers = append(checkers, redisstore.NewHealthChecker(client))
		return client, nil
	}

	switch cfg.Idempotency.Backend {
	case config.BackendRedis:
		client, err := connectRedis()
		if err != nil {
			return err
		}

		backend = redisbackend.New(client, redisbackend.WithKeyPrefix(cfg.Idempotency.KeyPrefix))

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		var pgOpts []postgresbackend.Option
		if cfg.Idempotency.Table != "" {
			pgOpts = append(pgOpts, postgresbackend.WithTable(cfg.Idempotency.Table))
		}
		pg := postgresbackend.New(pool, pgOpts...)
		if err := pg.EnsureTable(ctx); err != nil {
			return fmt.Errorf("failed to prepare idempotency table: %w", err)
		}

		backend = pg
		checkers = append(checkers, database.NewHealthChecker(pool))

	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		backend = dynamobackend.New(dynamodb.NewFromConfig(awsCfg), cfg.Idempotency.Table)

	default:
		return fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}

	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	storeOpts := []idempotency.Option{
		idempotency.WithKeyPrefix(cfg.Idempotency.KeyPrefix),
		idempotency.WithExpiresAfter(cfg.Idempotency.ExpiresAfter),
	}
	if cfg.Idempotency.EventKeyQuery != "" {
		storeOpts = append(storeOpts, idempotency.WithEventKeyQuery(cfg.Idempotency.EventKeyQuery))
	}
	if cfg.Idempotency.PayloadQuery != "" {
		storeOpts = append(storeOpts, idempotency.WithPayloadValidationQuery(cfg.Idempotency.PayloadQuery))
	}
	if cfg.Idempotency.LocalCache {
		storeOpts = append(storeOpts, idempotency.WithLocalCache(cfg.Idempotency.LocalCacheMaxItems))
	}
	if cfg.Idempotency.RaiseOnNoKey {
		storeOpts = append(storeOpts, idempotency.WithRaiseOnNoIdempotencyKey())
	}

	store, err := idempotency.NewStore(backend, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to build idempotency store: %w", err)
	}

	var flags *featureflags.Client
	switch {
	case cfg.Flags.Source == config.FlagSourceRedis:
		client, err := connectRedis()
		if err != nil {
			return err
		}
		flags = featureflags.NewClient(redisstore.New(client,
			redisstore.WithKey(cfg.Flags.SchemaKey),
			redisstore.WithTTL(cfg.Flags.CacheTTL),
		))

	case cfg.Flags.SchemaPath != "":
		flags = featureflags.NewClient(featureflags.NewFileStore(cfg.Flags.SchemaPath, cfg.Flags.CacheTTL))

	default:
		log.Warn("no flag schema configured, feature endpoints disabled")
	}

	api := demoapi.NewAPI(idempotency.New(store), flags)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(log, &cfg.Observability, checkers...)
	obsServer.Start()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", slog.String("addr", httpServer.Addr))

		var serveErr error
		if cfg.Server.TLSEnabled {
			serveErr = httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server failed: %w", serveErr)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("observability server shutdown failed: %w", err)
	}

	log.Info("service exited successfully")
	return nil
}
