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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"callbridge/internal/audit"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/features"
	"callbridge/internal/quota"
	"callbridge/internal/reporting"
	"callbridge/internal/rtc"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"
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

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
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

	featureStore, err := features.NewHTTPStore(features.HTTPStoreConfig{
		BaseURL: cfg.Features.BaseURL,
		Timeout: cfg.FeaturesTimeout(),
		Logger:  log,
	})
	if err != nil {
		log.Error("feature store init failed", "err", err)
		os.Exit(1)
	}

	provider, err := rtc.NewLiveKitProvider(rtc.LiveKitConfig{
		Host:      cfg.RTC.Host,
		APIKey:    cfg.RTC.APIKey,
		APISecret: cfg.RTC.APISecret,
	})
	if err != nil {
		log.Error("rtc provider init failed", "err", err)
		os.Exit(1)
	}
	issuer, err := rtc.NewTokenIssuer(cfg.RTC.APIKey, cfg.RTC.APISecret)
	if err != nil {
		log.Error("rtc token issuer init failed", "err", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(audit.NewMemoryRepo())

	quotaCtrl := quota.NewController(quota.NewPostgresStore(db), featureStore)

	sessionStore := calls.NewCachedStore(calls.NewPostgresStore(db), rdb, time.Hour, log)
	manager, err := calls.NewManager(calls.ManagerConfig{
		Sessions:     sessionStore,
		Admission:    quotaCtrl,
		Rooms:        provider,
		Credentials:  issuer,
		Features:     featureStore,
		Audit:        auditSvc,
		WSURL:        cfg.RTCWSURL(),
		EmptyTimeout: cfg.RTCEmptyTimeout(),
		Logger:       log,
	})
	if err != nil {
		log.Error("call manager init failed", "err", err)
		os.Exit(1)
	}

	reaper := calls.NewReaper(calls.ReaperConfig{
		Sessions:    sessionStore,
		Rooms:       provider,
		Manager:     manager,
		RingTimeout: cfg.RTCRingTimeout(),
		Interval:    cfg.RTCReapInterval(),
		Logger:      log,
	})
	go reaper.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	deps := appDeps{
		handlers: httpHandlers(manager, quotaCtrl, reporting.NewService(sessionStore), featureStore, auditSvc, log),
		webhook:  rtc.WebhookHandler{Tokens: issuer, Events: manager},
		db:       db,
		rdb:      rdb,
		provider: provider,
	}
	registerRoutes(r, deps)

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
