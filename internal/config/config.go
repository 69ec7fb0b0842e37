package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Default configuration values.
const (
	defaultNumThreads      = 1
	defaultPollPeriod      = 30 * time.Second
	defaultBulkSize        = 10
	defaultMessageBulkSize = 1000
	defaultMaxRetries      = 3
	defaultLeasePeriod     = 3600 * time.Second
	defaultInvokeTimeout   = 60 * time.Second
	defaultPoolSize        = 10
	defaultPoolRecycle     = 3600 * time.Second
	defaultJanitorSchedule = "*/10 * * * *"
	defaultLogLevel        = "INFO"
)

// Допустимые уровни логирования (формат loglevel в [common]).
var validLogLevels = map[string]bool{
	"DEBUG":   true,
	"INFO":    true,
	"WARNING": true,
	"ERROR":   true,
}

// Config — полная конфигурация процесса.
//
// Строится один раз при старте через Load и дальше не меняется;
// передаётся явно в каждый компонент. Никакого мутабельного
// глобального состояния.
type Config struct {
	Common   Common
	Database Database
	Rest     Rest
	Main     Main
	Janitor  Janitor

	// Agents — конфигурации агентов по имени.
	// Заполняется только для агентов, перечисленных в [main] agents.
	Agents map[string]*AgentConfig
}

// Common — секция [common].
type Common struct {
	// LogDir — каталог логов. Пустой — логи в stdout.
	LogDir string

	// LogLevel — уровень логирования: DEBUG, INFO, WARNING, ERROR.
	LogLevel string
}

// Database — секция [database].
type Database struct {
	// ConnectString — строка подключения к Postgres (ключ "default").
	// Пустая — берётся из переменной окружения DB_URL.
	ConnectString string

	// PoolSize — максимум соединений в пуле.
	PoolSize int

	// PoolRecycle — максимальное время жизни соединения.
	PoolRecycle time.Duration

	// Echo — логировать SQL-запросы на уровне debug.
	Echo bool

	// PoolResetOnReturn — политика сброса соединения: "rollback" или "commit".
	// Принимается для совместимости; драйвер сбрасывает соединения сам.
	PoolResetOnReturn string
}

// Rest — секция [rest]. Разбирается и доступна компонентам;
// сам REST-фронтенд в этот модуль не входит.
type Rest struct {
	Host      string
	URLPrefix string
	CacherDir string
}

// Main — секция [main].
type Main struct {
	// Agents — упорядоченный список агентов, которых хостит процесс.
	Agents []string
}

// Janitor — секция [janitor].
type Janitor struct {
	// Schedule — cron-выражение запуска уборки.
	Schedule string

	// ExpiryGracePeriod — дополнительная отсрочка после expires_at,
	// прежде чем request будет признан просроченным.
	ExpiryGracePeriod time.Duration
}

// AgentConfig — секция одного агента.
type AgentConfig struct {
	// Name — имя агента (имя секции).
	Name string

	// NumThreads — число параллельных воркеров агента (>=1).
	NumThreads int

	// PollPeriod — период цикла опроса (poll_time_period, секунды).
	PollPeriod time.Duration

	// BulkSize — максимум requests за одну выборку и максимум элементов
	// в одной групповой инвокации плагина (retrieve_bulk_size).
	BulkSize int

	// MessageBulkSize — максимум сообщений в одной партии уведомлений.
	// Только для conductor.
	MessageBulkSize int

	// MaxRetries — бюджет попыток этапа, после него request уходит в Failed.
	MaxRetries int

	// LeasePeriod — срок lease при захвате lock (lease_time_period, секунды).
	LeasePeriod time.Duration

	// InvokeTimeout — таймаут одной групповой инвокации плагина.
	InvokeTimeout time.Duration

	// Plugins — привязки плагинов агента по имени.
	Plugins map[string]*PluginBinding
}

// DefaultPath возвращает путь к конфигурационному файлу:
// значение CONVEYOR_CONFIG или /etc/conveyor/conveyor.cfg.
func DefaultPath() string {
	if p := os.Getenv("CONVEYOR_CONFIG"); p != "" {
		return p
	}
	return "/etc/conveyor/conveyor.cfg"
}

// Load читает и валидирует конфигурацию из файла.
//
// Файл — секционированный key-value (формат INI). Ошибка валидации
// фатальна: вызывающий процесс обязан завершиться, а не работать
// с частичной конфигурацией.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg := &Config{
		Agents: make(map[string]*AgentConfig),
	}

	// 1. [common]
	common := f.Section("common")
	cfg.Common.LogDir = common.Key("logdir").String()
	cfg.Common.LogLevel = strings.ToUpper(common.Key("loglevel").String())
	if cfg.Common.LogLevel == "" {
		cfg.Common.LogLevel = defaultLogLevel
	}
	if !validLogLevels[cfg.Common.LogLevel] {
		return nil, NewValidationError("common", "loglevel",
			fmt.Sprintf("unknown log level %q", cfg.Common.LogLevel), ErrInvalidValue)
	}

	// 2. [database]
	db := f.Section("database")
	cfg.Database.ConnectString = db.Key("default").String()
	cfg.Database.PoolSize = db.Key("pool_size").MustInt(defaultPoolSize)
	cfg.Database.PoolRecycle = secondsKey(db, "pool_recycle", defaultPoolRecycle)
	cfg.Database.Echo = db.Key("echo").MustBool(false)
	cfg.Database.PoolResetOnReturn = db.Key("pool_reset_on_return").String()
	if cfg.Database.PoolSize <= 0 {
		return nil, NewValidationError("database", "pool_size", "must be positive", ErrInvalidValue)
	}
	switch cfg.Database.PoolResetOnReturn {
	case "", "rollback", "commit":
	default:
		return nil, NewValidationError("database", "pool_reset_on_return",
			fmt.Sprintf("unknown policy %q", cfg.Database.PoolResetOnReturn), ErrInvalidValue)
	}

	// 3. [rest]
	rest := f.Section("rest")
	cfg.Rest.Host = rest.Key("host").String()
	cfg.Rest.URLPrefix = rest.Key("url_prefix").String()
	cfg.Rest.CacherDir = rest.Key("cacher_dir").String()

	// 4. [main] и секции агентов
	main := f.Section("main")
	for _, name := range main.Key("agents").Strings(",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cfg.Main.Agents = append(cfg.Main.Agents, name)
	}
	seen := make(map[string]bool, len(cfg.Main.Agents))
	for _, name := range cfg.Main.Agents {
		if seen[name] {
			return nil, NewValidationError("main", "agents", name, ErrDuplicateAgent)
		}
		seen[name] = true

		agent, err := loadAgent(f, name)
		if err != nil {
			return nil, err
		}
		cfg.Agents[name] = agent
	}

	// 5. [janitor]
	jan := f.Section("janitor")
	cfg.Janitor.Schedule = jan.Key("schedule").MustString(defaultJanitorSchedule)
	cfg.Janitor.ExpiryGracePeriod = secondsKey(jan, "expiry_grace_period", 0)

	return cfg, nil
}

// loadAgent читает секцию одного агента с применением default-значений.
func loadAgent(f *ini.File, name string) (*AgentConfig, error) {
	sec, err := f.GetSection(name)
	if err != nil {
		return nil, NewValidationError("main", "agents",
			fmt.Sprintf("agent %q listed but section missing", name), ErrMissingSection)
	}

	agent := &AgentConfig{
		Name:          name,
		NumThreads:    sec.Key("num_threads").MustInt(defaultNumThreads),
		PollPeriod:    secondsKey(sec, "poll_time_period", defaultPollPeriod),
		BulkSize:      sec.Key("retrieve_bulk_size").MustInt(defaultBulkSize),
		MaxRetries:    sec.Key("max_retries").MustInt(defaultMaxRetries),
		LeasePeriod:   secondsKey(sec, "lease_time_period", defaultLeasePeriod),
		InvokeTimeout: secondsKey(sec, "invoke_timeout", defaultInvokeTimeout),
	}

	if agent.NumThreads < 1 {
		return nil, NewValidationError(name, "num_threads", "must be >= 1", ErrInvalidValue)
	}
	if agent.PollPeriod <= 0 {
		return nil, NewValidationError(name, "poll_time_period", "must be positive", ErrInvalidValue)
	}
	if agent.BulkSize <= 0 {
		return nil, NewValidationError(name, "retrieve_bulk_size", "must be positive", ErrInvalidValue)
	}
	if agent.MaxRetries < 1 {
		return nil, NewValidationError(name, "max_retries", "must be >= 1", ErrInvalidValue)
	}

	// message_bulk_size имеет смысл только для conductor
	if sec.HasKey("message_bulk_size") {
		if name != "conductor" {
			return nil, NewValidationError(name, "message_bulk_size",
				"only valid for conductor", ErrInvalidValue)
		}
		agent.MessageBulkSize = sec.Key("message_bulk_size").MustInt(defaultMessageBulkSize)
		if agent.MessageBulkSize <= 0 {
			return nil, NewValidationError(name, "message_bulk_size", "must be positive", ErrInvalidValue)
		}
	} else if name == "conductor" {
		agent.MessageBulkSize = defaultMessageBulkSize
	}

	plugins, err := parsePlugins(sec)
	if err != nil {
		return nil, err
	}
	agent.Plugins = plugins

	return agent, nil
}

// Agent возвращает конфигурацию агента по имени.
func (c *Config) Agent(name string) (*AgentConfig, bool) {
	agent, ok := c.Agents[name]
	return agent, ok
}

// secondsKey читает ключ как число секунд и возвращает time.Duration.
func secondsKey(sec *ini.Section, key string, def time.Duration) time.Duration {
	if !sec.HasKey(key) {
		return def
	}
	return time.Duration(sec.Key(key).MustInt(int(def/time.Second))) * time.Second
}
