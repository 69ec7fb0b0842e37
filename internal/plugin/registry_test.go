package plugin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

// binding собирает привязку для тестов.
func binding(impl string, attrs map[string]string) *config.PluginBinding {
	return &config.PluginBinding{
		Impl:   impl,
		Attrs:  attrs,
		Nested: make(map[string]*config.PluginBinding),
	}
}

func testDeps() Deps {
	return Deps{Logger: slog.Default()}
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register("http.lister", newHTTPLister)
	if r.Count() != 1 {
		t.Errorf("expected 1 impl, got %d", r.Count())
	}

	// Has
	if !r.Has("http.lister") {
		t.Error("should have http.lister")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}

	// Unregister
	r.Unregister("http.lister")
	if r.Has("http.lister") {
		t.Error("should not have http.lister after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expected := []string{
		"http.lister",
		"http.metadata",
		"http.submitter",
		"http.poller",
		"store.contents_register",
		"messaging.notifier",
		"fallback.submitter",
	}
	for _, impl := range expected {
		if !r.Has(impl) {
			t.Errorf("default registry should have %s", impl)
		}
	}

	if len(r.Impls()) != len(expected) {
		t.Errorf("expected %d impls, got %d", len(expected), len(r.Impls()))
	}
}

// Resolver Tests

func TestResolver_Resolve(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"lister": binding("http.lister", map[string]string{
			"endpoint": "http://catalog.local/collections",
		}),
	}

	resolver := DefaultRegistry().NewResolver("collector", bindings, testDeps())

	instance, err := resolver.Resolve("lister", CapabilityLister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := instance.(Lister); !ok {
		t.Fatalf("expected Lister, got %T", instance)
	}
}

func TestResolver_ResolveCached(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"lister": binding("http.lister", map[string]string{
			"endpoint": "http://catalog.local",
		}),
	}

	resolver := DefaultRegistry().NewResolver("collector", bindings, testDeps())

	first, err := resolver.Resolve("lister", CapabilityLister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve("lister", CapabilityLister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("repeated resolve should return the same instance")
	}
}

func TestResolver_MissingBinding(t *testing.T) {
	resolver := DefaultRegistry().NewResolver("collector", map[string]*config.PluginBinding{}, testDeps())

	_, err := resolver.Resolve("lister", CapabilityLister)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrMissingBinding) {
		t.Errorf("expected ErrMissingBinding, got %v", err)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Agent != "collector" {
		t.Errorf("expected agent collector, got %s", cfgErr.Agent)
	}
	if cfgErr.Path != "plugin.lister" {
		t.Errorf("expected path plugin.lister, got %s", cfgErr.Path)
	}
}

func TestResolver_UnknownImpl(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"lister": binding("custom.lister", nil),
	}

	resolver := DefaultRegistry().NewResolver("collector", bindings, testDeps())

	_, err := resolver.Resolve("lister", CapabilityLister)
	if !errors.Is(err, ErrUnknownImpl) {
		t.Errorf("expected ErrUnknownImpl, got %v", err)
	}
}

func TestResolver_CapabilityMismatch(t *testing.T) {
	// http.lister не реализует Submitter
	bindings := map[string]*config.PluginBinding{
		"submitter": binding("http.lister", map[string]string{
			"endpoint": "http://catalog.local",
		}),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if !errors.Is(err, ErrCapabilityMismatch) {
		t.Errorf("expected ErrCapabilityMismatch, got %v", err)
	}
}

func TestResolver_MissingAttr(t *testing.T) {
	// endpoint обязателен для HTTP-плагинов
	bindings := map[string]*config.PluginBinding{
		"lister": binding("http.lister", nil),
	}

	resolver := DefaultRegistry().NewResolver("collector", bindings, testDeps())

	_, err := resolver.Resolve("lister", CapabilityLister)
	if !errors.Is(err, ErrMissingAttr) {
		t.Errorf("expected ErrMissingAttr, got %v", err)
	}
}

func TestResolver_InvalidAttr(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"lister": binding("http.lister", map[string]string{
			"endpoint": "http://catalog.local",
			"timeout":  "not-a-number",
		}),
	}

	resolver := DefaultRegistry().NewResolver("collector", bindings, testDeps())

	_, err := resolver.Resolve("lister", CapabilityLister)
	if !errors.Is(err, ErrInvalidAttr) {
		t.Errorf("expected ErrInvalidAttr, got %v", err)
	}
}

// Reference Tests

func TestResolver_RefSharedInstance(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"submitter": binding("@shared", nil),
		"poller":    binding("@shared", nil),
		"shared": binding("http.submitter", map[string]string{
			"endpoint": "http://backend.local/submit",
		}),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	first, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve("poller", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("references to the same binding should share one instance")
	}
}

func TestResolver_RefCycle(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"a": binding("@b", nil),
		"b": binding("@a", nil),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("a", CapabilitySubmitter)
	if !errors.Is(err, ErrPluginCycle) {
		t.Errorf("expected ErrPluginCycle, got %v", err)
	}
}

func TestResolver_SelfRefCycle(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"a": binding("@a", nil),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("a", CapabilitySubmitter)
	if !errors.Is(err, ErrPluginCycle) {
		t.Errorf("expected ErrPluginCycle, got %v", err)
	}
}

func TestResolver_UnknownRef(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"submitter": binding("@missing", nil),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if !errors.Is(err, ErrUnknownRef) {
		t.Errorf("expected ErrUnknownRef, got %v", err)
	}
}

func TestResolver_NamespaceIsolation(t *testing.T) {
	// Одинаковые имена привязок в разных агентах не пересекаются
	carrierBindings := map[string]*config.PluginBinding{
		"worker": binding("http.submitter", map[string]string{
			"endpoint": "http://backend-a.local",
		}),
	}
	conductorBindings := map[string]*config.PluginBinding{
		"worker": binding("http.submitter", map[string]string{
			"endpoint": "http://backend-b.local",
		}),
	}

	registry := DefaultRegistry()
	carrier := registry.NewResolver("carrier", carrierBindings, testDeps())
	conductor := registry.NewResolver("conductor", conductorBindings, testDeps())

	first, err := carrier.Resolve("worker", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := conductor.Resolve("worker", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first == second {
		t.Error("resolvers of different agents should not share instances")
	}
}

// Nested Binding Tests

func TestResolver_NestedFallback(t *testing.T) {
	submitter := binding("fallback.submitter", nil)
	submitter.Nested["primary"] = binding("http.submitter", map[string]string{
		"endpoint": "http://backend-a.local/submit",
	})
	submitter.Nested["secondary"] = binding("http.submitter", map[string]string{
		"endpoint": "http://backend-b.local/submit",
	})

	bindings := map[string]*config.PluginBinding{
		"submitter": submitter,
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	instance, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := instance.(*fallbackSubmitter); !ok {
		t.Fatalf("expected fallbackSubmitter, got %T", instance)
	}
}

func TestResolver_NestedRefToTopLevel(t *testing.T) {
	submitter := binding("fallback.submitter", nil)
	submitter.Nested["primary"] = binding("http.submitter", map[string]string{
		"endpoint": "http://backend-a.local/submit",
	})
	submitter.Nested["secondary"] = binding("@legacy", nil)

	bindings := map[string]*config.PluginBinding{
		"submitter": submitter,
		"legacy": binding("http.submitter", map[string]string{
			"endpoint": "http://backend-b.local/submit",
		}),
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	wrapped, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	legacy, err := resolver.Resolve("legacy", CapabilitySubmitter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fb := wrapped.(*fallbackSubmitter)
	if fb.secondary != legacy.(Submitter) {
		t.Error("nested @legacy should share the top-level instance")
	}
}

func TestResolver_NestedMissing(t *testing.T) {
	submitter := binding("fallback.submitter", nil)
	submitter.Nested["primary"] = binding("http.submitter", map[string]string{
		"endpoint": "http://backend-a.local/submit",
	})
	// secondary не задан

	bindings := map[string]*config.PluginBinding{
		"submitter": submitter,
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if !errors.Is(err, ErrMissingBinding) {
		t.Fatalf("expected ErrMissingBinding, got %v", err)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Path != "plugin.submitter.plugin.secondary" {
		t.Errorf("expected nested path, got %s", cfgErr.Path)
	}
}

func TestResolver_NestedCapabilityMismatch(t *testing.T) {
	submitter := binding("fallback.submitter", nil)
	submitter.Nested["primary"] = binding("http.lister", map[string]string{
		"endpoint": "http://catalog.local",
	})
	submitter.Nested["secondary"] = binding("http.submitter", map[string]string{
		"endpoint": "http://backend-b.local/submit",
	})

	bindings := map[string]*config.PluginBinding{
		"submitter": submitter,
	}

	resolver := DefaultRegistry().NewResolver("carrier", bindings, testDeps())

	_, err := resolver.Resolve("submitter", CapabilitySubmitter)
	if !errors.Is(err, ErrCapabilityMismatch) {
		t.Errorf("expected ErrCapabilityMismatch, got %v", err)
	}
}

// Factory Validation Tests

func TestMessagingNotifier_FactoryValidation(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]string
		wantErr error
	}{
		{
			name: "complete",
			attrs: map[string]string{
				"brokers":     "broker.local:5672",
				"destination": "conveyor.notifications",
			},
			wantErr: nil,
		},
		{
			name: "missing brokers",
			attrs: map[string]string{
				"destination": "conveyor.notifications",
			},
			wantErr: ErrMissingAttr,
		},
		{
			name: "missing destination",
			attrs: map[string]string{
				"brokers": "broker.local:5672",
			},
			wantErr: ErrMissingAttr,
		},
		{
			name: "invalid broker_timeout",
			attrs: map[string]string{
				"brokers":        "broker.local:5672",
				"destination":    "conveyor.notifications",
				"broker_timeout": "-5",
			},
			wantErr: ErrInvalidAttr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings := map[string]*config.PluginBinding{
				"notifier": binding("messaging.notifier", tt.attrs),
			}

			resolver := DefaultRegistry().NewResolver("conductor", bindings, testDeps())

			// Фабрика проверяет атрибуты без подключения к брокеру
			instance, err := resolver.Resolve("notifier", CapabilityNotifier)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, ok := instance.(Notifier); !ok {
					t.Fatalf("expected Notifier, got %T", instance)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStoreContentsRegister_RequiresStore(t *testing.T) {
	bindings := map[string]*config.PluginBinding{
		"register": binding("store.contents_register", nil),
	}

	// Deps без ContentStore
	resolver := DefaultRegistry().NewResolver("transporter", bindings, testDeps())

	_, err := resolver.Resolve("register", CapabilityContentsRegister)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrInvalidAttr) {
		t.Errorf("expected ErrInvalidAttr, got %v", err)
	}
}

// Fallback Submitter Tests

type stubSubmitter struct {
	handle string
	err    error
	calls  int
}

func (s *stubSubmitter) Submit(ctx context.Context, req *domain.Request) (string, error) {
	s.calls++
	return s.handle, s.err
}

func TestFallbackSubmitter_PrimarySucceeds(t *testing.T) {
	primary := &stubSubmitter{handle: "job-1"}
	secondary := &stubSubmitter{handle: "job-2"}

	fb := &fallbackSubmitter{primary: primary, secondary: secondary, logger: slog.Default()}

	req := &domain.Request{ID: uuid.New()}
	handle, err := fb.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "job-1" {
		t.Errorf("expected handle job-1, got %s", handle)
	}
	if secondary.calls != 0 {
		t.Error("secondary should not be called when primary succeeds")
	}
}

func TestFallbackSubmitter_SecondaryTakesOver(t *testing.T) {
	primary := &stubSubmitter{err: errors.New("backend down")}
	secondary := &stubSubmitter{handle: "job-2"}

	fb := &fallbackSubmitter{primary: primary, secondary: secondary, logger: slog.Default()}

	req := &domain.Request{ID: uuid.New()}
	handle, err := fb.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "job-2" {
		t.Errorf("expected handle job-2, got %s", handle)
	}
}

func TestFallbackSubmitter_BothFail(t *testing.T) {
	primary := &stubSubmitter{err: errors.New("backend a down")}
	secondary := &stubSubmitter{err: errors.New("backend b down")}

	fb := &fallbackSubmitter{primary: primary, secondary: secondary, logger: slog.Default()}

	req := &domain.Request{ID: uuid.New()}
	_, err := fb.Submit(context.Background(), req)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
