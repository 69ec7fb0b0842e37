package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/agent"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/plugin"
)

// Имена агентов конвейера. Секция конфигурации агента называется так же.
const (
	AgentCollector   = "collector"
	AgentTransformer = "transformer"
	AgentTransporter = "transporter"
	AgentCarrier     = "carrier"
	AgentConductor   = "conductor"
)

// Default configuration values.
const (
	defaultMessageBulkSize = 1000
)

// Config — параметры сборки этапных задач агента.
type Config struct {
	// MessageBulkSize — максимум уведомлений в одной партии
	// conductor'а (default: 1000). Остальные агенты не используют.
	MessageBulkSize int

	// Logger
	Logger *slog.Logger
}

// KnownAgents возвращает имена агентов в порядке конвейера.
func KnownAgents() []string {
	return []string{AgentCollector, AgentTransformer, AgentTransporter, AgentCarrier, AgentConductor}
}

// ValidateAgents проверяет список [main] agents: каждое имя известно
// и встречается один раз. Повтор имени дал бы этапу двух владельцев.
func ValidateAgents(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !knownAgent(name) {
			return fmt.Errorf("agent %s: %w", name, ErrUnknownAgent)
		}
		if seen[name] {
			return fmt.Errorf("agent %s: %w", name, ErrDuplicateAgent)
		}
		seen[name] = true
	}
	return nil
}

func knownAgent(name string) bool {
	for _, known := range KnownAgents() {
		if known == name {
			return true
		}
	}
	return false
}

// Build собирает этапные задачи агента name из его разрешённых
// plugin-привязок.
//
// Таблица владения переходами:
//
//	collector    Created             → CollectionListed
//	transformer  CollectionListed    → Transformed
//	transporter  Transformed         → ContentRegistered
//	carrier      ContentRegistered   → Submitted
//	carrier      Submitted, Polling  → Polling | Completed
//	conductor    Completed           → Notified
//
// Отсутствующая или неподходящая привязка — ошибка конфигурации:
// агент не должен стартовать частично настроенным.
func Build(name string, res *plugin.Resolver, cfg Config) ([]agent.StageTask, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch name {
	case AgentCollector:
		inst, err := res.Resolve(string(plugin.CapabilityLister), plugin.CapabilityLister)
		if err != nil {
			return nil, err
		}
		handler := &collectorHandler{lister: inst.(plugin.Lister), logger: logger}
		return []agent.StageTask{
			{Stage: domain.StageCreated, Handler: handler},
		}, nil

	case AgentTransformer:
		inst, err := res.Resolve(string(plugin.CapabilityMetadataReader), plugin.CapabilityMetadataReader)
		if err != nil {
			return nil, err
		}
		handler := &transformerHandler{reader: inst.(plugin.MetadataReader), logger: logger}
		return []agent.StageTask{
			{Stage: domain.StageCollectionListed, Handler: handler},
		}, nil

	case AgentTransporter:
		inst, err := res.Resolve(string(plugin.CapabilityContentsRegister), plugin.CapabilityContentsRegister)
		if err != nil {
			return nil, err
		}
		handler := &transporterHandler{register: inst.(plugin.ContentsRegister), logger: logger}
		return []agent.StageTask{
			{Stage: domain.StageTransformed, Handler: handler},
		}, nil

	case AgentCarrier:
		subInst, err := res.Resolve(string(plugin.CapabilitySubmitter), plugin.CapabilitySubmitter)
		if err != nil {
			return nil, err
		}
		pollInst, err := res.Resolve(string(plugin.CapabilityPoller), plugin.CapabilityPoller)
		if err != nil {
			return nil, err
		}

		submit := &submitHandler{submitter: subInst.(plugin.Submitter), logger: logger}
		poll := &pollHandler{poller: pollInst.(plugin.Poller), logger: logger}

		// Submitted и Polling обслуживает один poller: первый опрос
		// после submit и все последующие делают одно и то же
		return []agent.StageTask{
			{Stage: domain.StageContentRegistered, Handler: submit},
			{Stage: domain.StageSubmitted, Handler: poll},
			{Stage: domain.StagePolling, Handler: poll},
		}, nil

	case AgentConductor:
		inst, err := res.Resolve(string(plugin.CapabilityNotifier), plugin.CapabilityNotifier)
		if err != nil {
			return nil, err
		}

		bulkSize := cfg.MessageBulkSize
		if bulkSize <= 0 {
			bulkSize = defaultMessageBulkSize
		}

		handler := &conductorHandler{notifier: inst.(plugin.Notifier), bulkSize: bulkSize, logger: logger}
		return []agent.StageTask{
			{Stage: domain.StageCompleted, Handler: handler},
		}, nil

	default:
		return nil, fmt.Errorf("agent %s: %w", name, ErrUnknownAgent)
	}
}
