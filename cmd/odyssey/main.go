package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgerdesk/internal/app"
	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/observability"
	"github.com/odyssey-erp/ledgerdesk/internal/platform/cache"
	"github.com/odyssey-erp/ledgerdesk/internal/platform/db"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/workspace"
	workspacehttp "github.com/odyssey-erp/ledgerdesk/internal/workspace/http"
	"github.com/odyssey-erp/ledgerdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	engine, err := app.NewEngine(cfg)
	if err != nil {
		logger.Error("build voucher engine", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	directory := ledgers.NewDirectory(ledgers.NewRepository(dbpool), redisClient, cfg.LedgerCacheTTL, logger)
	model := interpreter.NewOpenAIModel(interpreter.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}, logger)
	interp := interpreter.New(model, engine, interpreter.Options{
		Timeout:      cfg.AITimeout,
		ContextLimit: cfg.AIContextLimit,
	}, logger)
	gateway := posting.NewService(posting.NewRepository(dbpool), logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	service := workspace.NewService(workspace.Config{
		Engine:      engine,
		Interpreter: interp,
		Gateway:     gateway,
		Store:       workspace.NewRedisStore(redisClient, cfg.DraftTTL),
		Guard:       workspace.NewRedisGuard(redisClient, cfg.AITimeout+15*time.Second),
		Directory:   directory,
		Enqueuer:    jobClient,
		Metrics:     metrics,
		Logger:      logger,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		WorkspaceHandler: workspacehttp.NewHandler(service, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
