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

	"campaign-callsync/internal/audit"
	"campaign-callsync/internal/auth"
	"campaign-callsync/internal/calls"
	"campaign-callsync/internal/config"
	"campaign-callsync/internal/convai"
	"campaign-callsync/internal/httpapi"
	"campaign-callsync/internal/poller"
	"campaign-callsync/internal/reporting"
	"campaign-callsync/internal/scheduler"
	"campaign-callsync/internal/sentiment"
	"campaign-callsync/pkg/logger"
	"campaign-callsync/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // loads .env

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

	if cfg.App.Env == "production" {
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

	// Stores and provider clients
	callStore := calls.NewStore(db)
	analysisStore := sentiment.NewStore(db)
	auditSvc := audit.NewService(audit.NewStore(db))
	provider := convai.NewClient(cfg.ConvAI.BaseURL, cfg.ConvAI.APIKey, cfg.ConvAI.HTTPTimeout)

	// Sentiment analysis is optional; without an API key the poller records
	// calls and transcripts but skips analysis.
	var analyzer poller.Analyzer
	var analysisSink poller.AnalysisStore
	if cfg.OpenAI.APIKey != "" {
		analyzer = sentiment.NewAnalyzer(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		analysisSink = analysisStore
	} else {
		log.Warn("OPENAI_API_KEY not set, sentiment analysis disabled")
	}

	pollSvc := poller.NewService(provider, provider, callStore, analyzer, analysisSink,
		logger.Component(log, "poller"), poller.Options{
			PageSize:     cfg.Poll.PageSize,
			BatchSize:    cfg.Poll.BatchSize,
			BatchPause:   cfg.Poll.BatchPause,
			CacheMax:     cfg.Poll.CacheMax,
			CacheKeep:    cfg.Poll.CacheKeep,
			DefaultOrgID: cfg.Poll.DefaultOrgID,
		})
	pollSvc.SetLease(poller.NewRedisLease(rdb, cfg.Poll.LeaseTTL))

	sched := scheduler.New(pollSvc, cfg.Poll.Interval, logger.Component(log, "scheduler"))
	sched.Start(rootCtx)
	defer sched.Stop()

	reports := reporting.NewService(callStore, analysisStore)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireOpsToken(authManager), httpapi.Handlers{
		Scheduler: sched,
		Reports:   reports,
		Audit:     auditSvc,
	})

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
}
