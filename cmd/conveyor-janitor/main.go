// Conveyor Janitor — периодическая уборка Request Store.
// Среди реплик работает только лидер (advisory lock в Postgres).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/janitor"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const janitorLockKey int64 = 724509

func main() {
	// Конфигурация процесса
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger, err := telemetry.Setup(cfg.Common, "conveyor-janitor")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging error:", err)
		os.Exit(1)
	}
	logger.Info("starting conveyor-janitor", "schedule", cfg.Janitor.Schedule)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	jan, err := janitor.New(janitor.Config{
		Store:       repo.NewRequestRepo(pool),
		Schedule:    cfg.Janitor.Schedule,
		GracePeriod: cfg.Janitor.ExpiryGracePeriod,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("invalid janitor configuration", "error", err)
		os.Exit(1)
	}

	// Лидерство: уборку гоняет ровно один процесс
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		tk := time.NewTicker(5 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", janitorLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				if hasLock {
					continue
				}
				// пытаемся стать лидером
				var ok bool
				if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", janitorLockKey).Scan(&ok); err != nil {
					logger.Warn("leader election query failed", "error", err)
					continue
				}
				if !ok {
					continue
				}
				hasLock = true
				logger.Info("became janitor leader")

				if err := jan.Start(ctx); err != nil {
					logger.Error("failed to start janitor", "error", err)
					cancel()
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8083"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	wg.Wait()
	jan.Stop()
	logger.Info("conveyor-janitor stopped")
}
