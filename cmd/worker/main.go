package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/config"
	"schoolattend/internal/logging"
	"schoolattend/internal/queue"
	"schoolattend/internal/roster"
	"schoolattend/internal/store"
	"schoolattend/internal/worker"
)

// Worker consumes attendance.marked events and logs low-attendance alerts.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Production())
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("detail", w))
	}
	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is served by the api process; run the worker with redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		log.Warn("redis not reachable; consumer will keep retrying", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	rosterSvc := roster.NewService(st, log.Named("roster"))
	attSvc := attendance.NewService(st, rosterSvc, nil, nil, log.Named("attendance"))
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	proc := worker.NewProcessor(attSvc, cfg.LowAttendancePercent, nil, log.Named("worker"))
	if err := proc.Run(ctx, q); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
