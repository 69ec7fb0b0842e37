// Conveyor Agent Daemon — хостит агентов конвейера.
//
// Процесс:
//   - Читает [main] agents из конфигурационного файла
//   - Собирает каждому агенту его этапы и плагины
//   - Запускает агентов под Supervisor
//   - Отдаёт /healthz и Prometheus /metrics
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/agent"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/plugin"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	// Конфигурация процесса: CONVEYOR_CONFIG или /etc/conveyor/conveyor.cfg
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger, err := telemetry.Setup(cfg.Common, "conveyor-agentd")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging error:", err)
		os.Exit(1)
	}
	logger.Info("starting conveyor-agentd", "agents", cfg.Main.Agents)

	// Состав агентов проверяется до любых подключений
	if err := pipeline.ValidateAgents(cfg.Main.Agents); err != nil {
		logger.Error("invalid agent list", "error", err)
		os.Exit(1)
	}

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

	// Репозитории
	requestRepo := repo.NewRequestRepo(pool)
	contentRepo := repo.NewContentRepo(pool)

	// Собираем агентов: каждому свой Resolver поверх общего реестра
	registry := plugin.DefaultRegistry()
	deps := plugin.Deps{Contents: contentRepo, Logger: logger}

	var agents []*agent.Agent
	var resolvers []*plugin.Resolver
	for _, name := range cfg.Main.Agents {
		agentCfg := cfg.Agents[name]

		res := registry.NewResolver(name, agentCfg.Plugins, deps)
		resolvers = append(resolvers, res)

		tasks, err := pipeline.Build(name, res, pipeline.Config{
			MessageBulkSize: agentCfg.MessageBulkSize,
			Logger:          logger,
		})
		if err != nil {
			logger.Error("failed to build agent", "agent", name, "error", err)
			os.Exit(1)
		}

		agents = append(agents, agent.New(agent.Config{
			Name:          name,
			Tasks:         tasks,
			Store:         requestRepo,
			NumThreads:    agentCfg.NumThreads,
			PollPeriod:    agentCfg.PollPeriod,
			BulkSize:      agentCfg.BulkSize,
			MaxRetries:    agentCfg.MaxRetries,
			LeasePeriod:   agentCfg.LeasePeriod,
			InvokeTimeout: agentCfg.InvokeTimeout,
			Logger:        logger,
		}))
	}

	// Запускаем агентов
	supervisor := agent.NewSupervisor(agents, logger)
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("failed to start agents", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8080"
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

	// Останавливаем агентов и закрываем плагины
	supervisor.Stop()
	for _, res := range resolvers {
		if err := res.Close(); err != nil {
			logger.Warn("failed to close plugins", "error", err)
		}
	}
	logger.Info("conveyor-agentd stopped")
}
