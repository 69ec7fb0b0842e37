package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

// fallbackSubmitter — реализация "fallback.submitter" capability submitter.
//
// Обёртка над двумя submitter'ами: отправка идёт через primary, при
// его отказе пробуется secondary. Отказ обоих возвращается как одна
// ошибка с обеими причинами.
//
// Вложенные привязки (обе обязательны, capability submitter):
//   - plugin.<name>.plugin.primary
//   - plugin.<name>.plugin.secondary
//
// Любая из них может быть ссылкой @name на привязку верхнего уровня.
type fallbackSubmitter struct {
	primary   Submitter
	secondary Submitter
	logger    *slog.Logger
}

func newFallbackSubmitter(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	primary, err := fc.ResolveNested(binding, "primary", CapabilitySubmitter)
	if err != nil {
		return nil, err
	}

	secondary, err := fc.ResolveNested(binding, "secondary", CapabilitySubmitter)
	if err != nil {
		return nil, err
	}

	return &fallbackSubmitter{
		primary:   primary.(Submitter),
		secondary: secondary.(Submitter),
		logger:    fc.Logger(),
	}, nil
}

// Submit реализует Submitter.
func (f *fallbackSubmitter) Submit(ctx context.Context, req *domain.Request) (string, error) {
	handle, primaryErr := f.primary.Submit(ctx, req)
	if primaryErr == nil {
		return handle, nil
	}

	f.logger.Warn("primary submitter failed, trying secondary",
		"request_id", req.ID,
		"error", primaryErr,
	)

	handle, secondaryErr := f.secondary.Submit(ctx, req)
	if secondaryErr != nil {
		return "", fmt.Errorf("both submitters failed: primary: %v; secondary: %w", primaryErr, secondaryErr)
	}

	f.logger.Info("secondary submitter succeeded",
		"request_id", req.ID,
		"handle", handle,
	)

	return handle, nil
}
