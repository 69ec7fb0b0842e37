package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Supervisor управляет жизненным циклом набора агентов одного процесса.
//
// Процесс хостит агентов из [main] agents; Supervisor запускает их в
// порядке перечисления и останавливает в обратном. Отказ запуска
// любого агента откатывает уже запущенных: процесс либо хостит всех
// своих агентов, либо никого.
type Supervisor struct {
	agents []*Agent
	logger *slog.Logger

	stopped   bool
	stoppedMu sync.RWMutex
}

// NewSupervisor создаёт Supervisor над агентами процесса.
func NewSupervisor(agents []*Agent, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		agents: agents,
		logger: logger,
	}
}

// Names возвращает имена агентов в порядке запуска.
func (s *Supervisor) Names() []string {
	names := make([]string, 0, len(s.agents))
	for _, ag := range s.agents {
		names = append(names, ag.Name())
	}
	return names
}

// Start запускает всех агентов.
func (s *Supervisor) Start(ctx context.Context) error {
	for i, ag := range s.agents {
		if err := ag.Start(ctx); err != nil {
			s.logger.Error("agent failed to start, rolling back",
				"agent", ag.Name(),
				"error", err,
			)

			for j := i - 1; j >= 0; j-- {
				s.agents[j].Stop()
			}

			return fmt.Errorf("start agent %s: %w", ag.Name(), err)
		}
	}

	s.logger.Info("all agents started", "agents", s.Names())
	return nil
}

// Stop останавливает агентов в порядке, обратном запуску.
// Повторный вызов безопасен.
func (s *Supervisor) Stop() {
	s.stoppedMu.Lock()
	if s.stopped {
		s.stoppedMu.Unlock()
		return
	}
	s.stopped = true
	s.stoppedMu.Unlock()

	for i := len(s.agents) - 1; i >= 0; i-- {
		s.agents[i].Stop()
	}

	s.logger.Info("all agents stopped")
}

// IsStopped проверяет, остановлен ли Supervisor.
func (s *Supervisor) IsStopped() bool {
	s.stoppedMu.RLock()
	defer s.stoppedMu.RUnlock()
	return s.stopped
}
