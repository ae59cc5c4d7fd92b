package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/config"
	"schoolattend/internal/handler"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/logging"
	"schoolattend/internal/metrics"
	"schoolattend/internal/queue"
	"schoolattend/internal/roster"
	"schoolattend/internal/store"
	"schoolattend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Production())
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("detail", w))
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rosterSvc := roster.NewService(st, log.Named("roster"))

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}
	attSvc := attendance.NewService(st, rosterSvc, q, m, log.Named("attendance"))

	// Nothing outside this process can read an in-memory queue.
	if cfg.QueueBackend == "memory" {
		proc := worker.NewProcessor(attSvc, cfg.LowAttendancePercent, m, log.Named("worker"))
		go func() {
			if err := proc.Run(ctx, q); err != nil {
				log.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	}

	authSvc := auth.NewService(st, auth.Issuer{
		Name:       cfg.JWTIssuer,
		Key:        cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, log.Named("auth"))
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		created, err := authSvc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			log.Warn("bootstrap admin failed", zap.Error(err))
		} else if created {
			log.Info("bootstrap admin created", zap.String("email", cfg.BootstrapAdminEmail))
		}
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RateLimitBackend == "redis" {
			limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		} else {
			limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		}
	}

	health := map[string]handler.HealthCheck{"store": st.Ping}
	if cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis" {
		health["redis"] = redisClient.Ping
	}

	r := handler.NewRouter(handler.Deps{
		Roster:      rosterSvc,
		Attendance:  attSvc,
		Auth:        authSvc,
		Log:         log,
		Metrics:     m,
		Gatherer:    reg,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
		Health:      health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
