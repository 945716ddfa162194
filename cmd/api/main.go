package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/calls/events"
	"callbridge/internal/config"
	"callbridge/internal/httpapi"
	"callbridge/internal/ingest"
	"callbridge/internal/mediastream"
	"callbridge/internal/orchestrator"
	"callbridge/internal/telephony"
	"callbridge/internal/transcribe"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	dialer, err := telephony.NewTwilioClient(cfg.Twilio)
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	gateway, err := transcribe.NewOpenAIGateway(cfg.OpenAI, dialer)
	if err != nil {
		log.Error("transcription init failed", "err", err)
		os.Exit(1)
	}

	store := calls.NewPGStore(db)
	trail := events.NewService(events.NewPGRepo(db))
	directory := orchestrator.NewPGDirectory(db)
	limiter := orchestrator.NewRedisLimiter(rdb, cfg.Call.ActiveCallTTL)

	orch := orchestrator.NewService(store, dialer, directory, limiter, cfg)
	processor := mediastream.NewProcessor(store, gateway, cfg.Call)
	ingestor := ingest.NewService(store, trail, processor, gateway,
		func(ctx context.Context, c calls.Call) {
			orch.ReleaseActive(ctx, c.TargetID)
		})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Orchestrator: orch,
		Ingest:       ingestor,
		Store:        store,
		Cfg:          cfg,
	}
	registerRoutes(r, h, processor, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
