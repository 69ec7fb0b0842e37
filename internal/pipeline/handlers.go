package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/agent"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/plugin"
)

// Ключи payload, через которые этапы передают друг другу результаты.
const (
	payloadTotalFiles   = "total_files"
	payloadTotalBytes   = "total_bytes"
	payloadContents     = "contents"
	payloadMetadata     = "metadata"
	payloadRegistered   = "registered_contents"
	payloadSubmitHandle = "submit_handle"
	payloadOutputs      = "outputs"
)

// collectorHandler перечисляет коллекцию каждого request'а.
//
// Найденные contents уезжают в payload: регистрирует их transporter,
// двумя этапами позже.
type collectorHandler struct {
	lister plugin.Lister
	logger *slog.Logger
}

func (h *collectorHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for _, req := range batch {
		listing, err := h.lister.ListCollection(ctx, plugin.Collection{Scope: req.Scope, Name: req.Name})
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{
				ID:  req.ID,
				Err: fmt.Errorf("list collection %s:%s: %w", req.Scope, req.Name, err),
			})
			continue
		}

		h.logger.Debug("collection listed",
			"request_id", req.ID,
			"files", listing.TotalFiles,
			"bytes", listing.TotalBytes,
		)

		outcomes = append(outcomes, agent.Outcome{
			ID:        req.ID,
			NextStage: domain.StageCollectionListed,
			Delta: map[string]any{
				payloadTotalFiles: listing.TotalFiles,
				payloadTotalBytes: listing.TotalBytes,
				payloadContents:   listing.Contents,
			},
		})
	}

	return outcomes
}

// transformerHandler строит описание выходной коллекции по метаданным
// входной.
type transformerHandler struct {
	reader plugin.MetadataReader
	logger *slog.Logger
}

func (h *transformerHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for _, req := range batch {
		meta, err := h.reader.ReadMetadata(ctx, plugin.Collection{Scope: req.Scope, Name: req.Name})
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{
				ID:  req.ID,
				Err: fmt.Errorf("read metadata %s:%s: %w", req.Scope, req.Name, err),
			})
			continue
		}

		outcomes = append(outcomes, agent.Outcome{
			ID:        req.ID,
			NextStage: domain.StageTransformed,
			Delta:     map[string]any{payloadMetadata: meta},
		})
	}

	return outcomes
}

// transporterHandler регистрирует contents, найденные при листинге.
type transporterHandler struct {
	register plugin.ContentsRegister
	logger   *slog.Logger
}

func (h *transporterHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for _, req := range batch {
		contents, err := contentsFromPayload(req.Payload)
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{ID: req.ID, Err: err})
			continue
		}

		registered, err := h.register.RegisterContents(ctx, req.ID, contents)
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{
				ID:  req.ID,
				Err: fmt.Errorf("register contents: %w", err),
			})
			continue
		}

		outcomes = append(outcomes, agent.Outcome{
			ID:        req.ID,
			NextStage: domain.StageContentRegistered,
			Delta:     map[string]any{payloadRegistered: registered},
		})
	}

	return outcomes
}

// submitHandler отправляет запрос во внешний backend и запоминает
// tracking handle для опроса.
type submitHandler struct {
	submitter plugin.Submitter
	logger    *slog.Logger
}

func (h *submitHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for _, req := range batch {
		handle, err := h.submitter.Submit(ctx, req)
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{
				ID:  req.ID,
				Err: fmt.Errorf("submit: %w", err),
			})
			continue
		}

		h.logger.Debug("request submitted", "request_id", req.ID, "handle", handle)

		outcomes = append(outcomes, agent.Outcome{
			ID:        req.ID,
			NextStage: domain.StageSubmitted,
			Delta:     map[string]any{payloadSubmitHandle: handle},
		})
	}

	return outcomes
}

// pollHandler опрашивает состояние внешней обработки по tracking handle.
type pollHandler struct {
	poller plugin.Poller
	logger *slog.Logger
}

func (h *pollHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for _, req := range batch {
		handle := submitHandle(req.Payload)
		if handle == "" {
			outcomes = append(outcomes, agent.Outcome{ID: req.ID, Err: ErrNoSubmitHandle})
			continue
		}

		result, err := h.poller.Poll(ctx, handle)
		if err != nil {
			outcomes = append(outcomes, agent.Outcome{
				ID:  req.ID,
				Err: fmt.Errorf("poll %s: %w", handle, err),
			})
			continue
		}

		if !result.Done {
			// Polling → Polling: самопереход поднимает updated_at,
			// очередь опроса остаётся честной
			h.logger.Debug("backend still running", "request_id", req.ID, "handle", handle)
			outcomes = append(outcomes, agent.Outcome{ID: req.ID, NextStage: domain.StagePolling})
			continue
		}

		var delta map[string]any
		if len(result.Outputs) > 0 {
			delta = map[string]any{payloadOutputs: result.Outputs}
		}

		outcomes = append(outcomes, agent.Outcome{
			ID:        req.ID,
			NextStage: domain.StageCompleted,
			Delta:     delta,
		})
	}

	return outcomes
}

// conductorHandler доставляет уведомления о завершённых requests.
//
// Группа диспетчера дополнительно режется на партии не больше
// message_bulk_size; у брокера доставка групповая, поэтому исход
// партии общий для её requests.
type conductorHandler struct {
	notifier plugin.Notifier
	bulkSize int
	logger   *slog.Logger
}

func (h *conductorHandler) HandleBatch(ctx context.Context, batch []*domain.Request) []agent.Outcome {
	outcomes := make([]agent.Outcome, 0, len(batch))

	for start := 0; start < len(batch); start += h.bulkSize {
		end := min(start+h.bulkSize, len(batch))
		group := batch[start:end]

		notes := make([]plugin.Notification, 0, len(group))
		for _, req := range group {
			notes = append(notes, plugin.Notification{
				RequestID: req.ID,
				Scope:     req.Scope,
				Name:      req.Name,
				Requester: req.Requester,
				Stage:     req.Stage,
				Reason:    req.Reason,
			})
		}

		err := h.notifier.Notify(ctx, notes)
		if err != nil {
			err = fmt.Errorf("notify: %w", err)
		}

		for _, req := range group {
			if err != nil {
				outcomes = append(outcomes, agent.Outcome{ID: req.ID, Err: err})
				continue
			}
			outcomes = append(outcomes, agent.Outcome{ID: req.ID, NextStage: domain.StageNotified})
		}
	}

	return outcomes
}

// contentsFromPayload достаёт contents, записанные collector'ом.
// Прочитанный из БД payload хранит их как []any из map'ов; в памяти
// может лежать исходный []domain.Content.
func contentsFromPayload(payload map[string]any) ([]domain.Content, error) {
	raw, ok := payload[payloadContents]
	if !ok || raw == nil {
		return nil, nil
	}

	if contents, ok := raw.([]domain.Content); ok {
		return contents, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode contents payload: %w", err)
	}

	var contents []domain.Content
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("decode contents payload: %w", err)
	}
	return contents, nil
}

// submitHandle возвращает tracking handle из payload, "" если его нет.
func submitHandle(payload map[string]any) string {
	handle, _ := payload[payloadSubmitHandle].(string)
	return handle
}
