package plugin

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

// storeContentsRegister — реализация "store.contents_register"
// capability contents_register.
//
// Регистрирует content-записи прямо в хранилище процесса. Повторная
// регистрация той же записи поглощается хранилищем, поэтому retry
// этапа безопасен.
//
// Атрибутов не имеет; требует, чтобы процесс передал ContentStore
// в Deps.
type storeContentsRegister struct {
	store ContentStore
}

func newStoreContentsRegister(fc *FactoryContext, binding *config.PluginBinding) (any, error) {
	store := fc.Deps().Contents
	if store == nil {
		return nil, newConfigError(fc.Agent(), fc.path,
			"store.contents_register requires database access, which this process does not provide",
			ErrInvalidAttr)
	}

	return &storeContentsRegister{store: store}, nil
}

// RegisterContents реализует ContentsRegister.
func (s *storeContentsRegister) RegisterContents(ctx context.Context, requestID uuid.UUID, contents []domain.Content) (int64, error) {
	if len(contents) == 0 {
		return 0, nil
	}

	rows := make([]domain.Content, len(contents))
	copy(rows, contents)

	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].RequestID = requestID
		if rows[i].Status == "" {
			rows[i].Status = domain.ContentStatusNew
		}
	}

	inserted, err := s.store.RegisterBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("register contents for request %s: %w", requestID, err)
	}

	return inserted, nil
}
