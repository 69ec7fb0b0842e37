package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig пишет содержимое во временный файл и возвращает путь.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conveyor.cfg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `
[common]
logdir = /var/log/conveyor
loglevel = debug

[database]
default = postgresql://conveyor:secret@db:5432/conveyor
pool_size = 25
pool_recycle = 1800
echo = 1
pool_reset_on_return = commit

[rest]
host = https://conveyor.example.org:443
url_prefix = /conveyor
cacher_dir = /var/lib/conveyor/cache

[main]
agents = collector, transformer, conductor

[janitor]
schedule = */5 * * * *
expiry_grace_period = 120

[collector]
num_threads = 4
poll_time_period = 10
retrieve_bulk_size = 20
max_retries = 5
lease_time_period = 600
invoke_timeout = 30
plugin.collection_lister = http.lister
plugin.collection_lister.endpoint = https://backend/api/collections

[transformer]
plugin.metadata_reader = http.metadata
plugin.metadata_reader.endpoint = https://backend/api/metadata

[conductor]
num_threads = 2
message_bulk_size = 500
plugin.notifier = messaging.notifier
plugin.notifier.brokers = broker:5672
plugin.notifier.destination = conveyor.notifications
`

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Common.LogDir != "/var/log/conveyor" {
		t.Errorf("logdir = %q", cfg.Common.LogDir)
	}
	// loglevel нормализуется к верхнему регистру
	if cfg.Common.LogLevel != "DEBUG" {
		t.Errorf("loglevel = %q, want DEBUG", cfg.Common.LogLevel)
	}

	if cfg.Database.ConnectString != "postgresql://conveyor:secret@db:5432/conveyor" {
		t.Errorf("connect string = %q", cfg.Database.ConnectString)
	}
	if cfg.Database.PoolSize != 25 {
		t.Errorf("pool_size = %d, want 25", cfg.Database.PoolSize)
	}
	if cfg.Database.PoolRecycle != 1800*time.Second {
		t.Errorf("pool_recycle = %v", cfg.Database.PoolRecycle)
	}
	if !cfg.Database.Echo {
		t.Error("echo should be enabled")
	}

	if cfg.Rest.URLPrefix != "/conveyor" {
		t.Errorf("url_prefix = %q", cfg.Rest.URLPrefix)
	}

	wantAgents := []string{"collector", "transformer", "conductor"}
	if len(cfg.Main.Agents) != len(wantAgents) {
		t.Fatalf("agents = %v, want %v", cfg.Main.Agents, wantAgents)
	}
	for i, name := range wantAgents {
		if cfg.Main.Agents[i] != name {
			t.Errorf("agents[%d] = %q, want %q", i, cfg.Main.Agents[i], name)
		}
	}

	if cfg.Janitor.Schedule != "*/5 * * * *" {
		t.Errorf("janitor schedule = %q", cfg.Janitor.Schedule)
	}
	if cfg.Janitor.ExpiryGracePeriod != 2*time.Minute {
		t.Errorf("expiry_grace_period = %v", cfg.Janitor.ExpiryGracePeriod)
	}
}

func TestLoad_AgentSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	collector, ok := cfg.Agent("collector")
	if !ok {
		t.Fatal("collector agent not loaded")
	}
	if collector.NumThreads != 4 {
		t.Errorf("num_threads = %d, want 4", collector.NumThreads)
	}
	if collector.PollPeriod != 10*time.Second {
		t.Errorf("poll_time_period = %v", collector.PollPeriod)
	}
	if collector.BulkSize != 20 {
		t.Errorf("retrieve_bulk_size = %d, want 20", collector.BulkSize)
	}
	if collector.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", collector.MaxRetries)
	}
	if collector.LeasePeriod != 10*time.Minute {
		t.Errorf("lease_time_period = %v", collector.LeasePeriod)
	}
	if collector.InvokeTimeout != 30*time.Second {
		t.Errorf("invoke_timeout = %v", collector.InvokeTimeout)
	}

	lister := collector.Plugins["collection_lister"]
	if lister == nil {
		t.Fatal("collection_lister binding not parsed")
	}
	if lister.Impl != "http.lister" {
		t.Errorf("impl = %q", lister.Impl)
	}
	if v, _ := lister.Attr("endpoint"); v != "https://backend/api/collections" {
		t.Errorf("endpoint = %q", v)
	}
}

func TestLoad_AgentDefaults(t *testing.T) {
	// transformer задаёт только плагин — всё остальное из defaults
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	transformer, ok := cfg.Agent("transformer")
	if !ok {
		t.Fatal("transformer agent not loaded")
	}
	if transformer.NumThreads != defaultNumThreads {
		t.Errorf("num_threads = %d, want default %d", transformer.NumThreads, defaultNumThreads)
	}
	if transformer.PollPeriod != defaultPollPeriod {
		t.Errorf("poll_time_period = %v, want default %v", transformer.PollPeriod, defaultPollPeriod)
	}
	if transformer.BulkSize != defaultBulkSize {
		t.Errorf("retrieve_bulk_size = %d, want default %d", transformer.BulkSize, defaultBulkSize)
	}
	if transformer.MaxRetries != defaultMaxRetries {
		t.Errorf("max_retries = %d, want default %d", transformer.MaxRetries, defaultMaxRetries)
	}
	if transformer.LeasePeriod != defaultLeasePeriod {
		t.Errorf("lease_time_period = %v, want default %v", transformer.LeasePeriod, defaultLeasePeriod)
	}
	// message_bulk_size не задан и агент не conductor
	if transformer.MessageBulkSize != 0 {
		t.Errorf("message_bulk_size = %d, want 0", transformer.MessageBulkSize)
	}
}

func TestLoad_ConductorMessageBulkSize(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	conductor, ok := cfg.Agent("conductor")
	if !ok {
		t.Fatal("conductor agent not loaded")
	}
	if conductor.MessageBulkSize != 500 {
		t.Errorf("message_bulk_size = %d, want 500", conductor.MessageBulkSize)
	}

	// conductor без явного значения получает default
	cfg2, err := Load(writeConfig(t, `
[main]
agents = conductor

[conductor]
plugin.notifier = messaging.notifier
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	conductor2, _ := cfg2.Agent("conductor")
	if conductor2.MessageBulkSize != defaultMessageBulkSize {
		t.Errorf("message_bulk_size = %d, want default %d",
			conductor2.MessageBulkSize, defaultMessageBulkSize)
	}
}

func TestLoad_MessageBulkSizeOutsideConductor(t *testing.T) {
	_, err := Load(writeConfig(t, `
[main]
agents = collector

[collector]
message_bulk_size = 100
plugin.collection_lister = http.lister
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", vErr.Err)
	}
}

func TestLoad_MissingAgentSection(t *testing.T) {
	_, err := Load(writeConfig(t, `
[main]
agents = collector, ghost
[collector]
plugin.collection_lister = http.lister
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrMissingSection) {
		t.Errorf("expected ErrMissingSection, got %v", vErr.Err)
	}
}

func TestLoad_DuplicateAgent(t *testing.T) {
	_, err := Load(writeConfig(t, `
[main]
agents = collector, collector
[collector]
plugin.collection_lister = http.lister
`))
	if !errorsIsValidation(err, ErrDuplicateAgent) {
		t.Errorf("expected ErrDuplicateAgent, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "zero num_threads",
			content: `
[main]
agents = collector
[collector]
num_threads = 0
`,
		},
		{
			name: "negative poll_time_period",
			content: `
[main]
agents = collector
[collector]
poll_time_period = -5
`,
		},
		{
			name: "zero retrieve_bulk_size",
			content: `
[main]
agents = collector
[collector]
retrieve_bulk_size = 0
`,
		},
		{
			name: "zero max_retries",
			content: `
[main]
agents = collector
[collector]
max_retries = 0
`,
		},
		{
			name: "bogus loglevel",
			content: `
[common]
loglevel = verbose
`,
		},
		{
			name: "bogus pool_reset_on_return",
			content: `
[database]
pool_reset_on_return = discard
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errorsIsValidation(err, ErrInvalidValue) {
				t.Errorf("expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cfg"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("CONVEYOR_CONFIG", "/tmp/custom.cfg")
	if got := DefaultPath(); got != "/tmp/custom.cfg" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv("CONVEYOR_CONFIG", "")
	if got := DefaultPath(); got != "/etc/conveyor/conveyor.cfg" {
		t.Errorf("DefaultPath() = %q", got)
	}
}

// errorsIsValidation проверяет, что err — ValidationError с заданной базовой ошибкой.
func errorsIsValidation(err error, target error) bool {
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		return false
	}
	return errors.Is(vErr.Err, target)
}
