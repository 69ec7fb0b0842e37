package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Conveyor/internal/config"
)

// parseLevel переводит loglevel из конфигурации в slog.Level.
// Возможные значения: DEBUG, INFO, WARNING, ERROR
// По умолчанию: INFO
func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup инициализирует глобальный логгер процесса.
//
// Уровень берётся из [common] loglevel, при пустом значении — из
// переменной LOG_LEVEL. Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
//
// При заданном [common] logdir вывод идёт в файл logdir/<process>.log,
// иначе в stdout.
func Setup(cfg config.Common, process string) (*slog.Logger, error) {
	var out *os.File = os.Stdout

	if cfg.LogDir != "" {
		path := filepath.Join(cfg.LogDir, process+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		out = f
	}

	levelName := cfg.LogLevel
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	level := parseLevel(levelName)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, nil
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithAgent возвращает логгер с добавленным именем агента.
func WithAgent(logger *slog.Logger, agent string) *slog.Logger {
	return logger.With("agent", agent)
}

// WithRequestID возвращает логгер с добавленным request_id.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithStage возвращает логгер с добавленным этапом.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With("stage", stage)
}
