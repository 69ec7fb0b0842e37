package config

import (
	"testing"
)

func TestParsePlugins_NestedTree(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[main]
agents = carrier

[carrier]
plugin.submitter = fallback.submitter
plugin.submitter.order = strict
plugin.submitter.plugin.primary = http.submitter
plugin.submitter.plugin.primary.endpoint = https://primary/api
plugin.submitter.plugin.primary.plugin.auth = token.auth
plugin.submitter.plugin.primary.plugin.auth.header = X-Auth
plugin.submitter.plugin.secondary = @legacy
plugin.legacy = http.submitter
plugin.legacy.endpoint = https://legacy/api
plugin.poller = http.poller
plugin.poller.endpoint = https://primary/api/status
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	carrier, _ := cfg.Agent("carrier")
	submitter := carrier.Plugins["submitter"]
	if submitter == nil {
		t.Fatal("submitter binding not parsed")
	}
	if submitter.Impl != "fallback.submitter" {
		t.Errorf("submitter impl = %q", submitter.Impl)
	}
	if v, _ := submitter.Attr("order"); v != "strict" {
		t.Errorf("submitter order attr = %q", v)
	}

	primary := submitter.Nested["primary"]
	if primary == nil {
		t.Fatal("nested primary binding not parsed")
	}
	if primary.Impl != "http.submitter" {
		t.Errorf("primary impl = %q", primary.Impl)
	}
	if v, _ := primary.Attr("endpoint"); v != "https://primary/api" {
		t.Errorf("primary endpoint = %q", v)
	}

	// вложенность третьего уровня
	auth := primary.Nested["auth"]
	if auth == nil {
		t.Fatal("third-level auth binding not parsed")
	}
	if auth.Impl != "token.auth" {
		t.Errorf("auth impl = %q", auth.Impl)
	}
	if v, _ := auth.Attr("header"); v != "X-Auth" {
		t.Errorf("auth header = %q", v)
	}

	secondary := submitter.Nested["secondary"]
	if secondary == nil {
		t.Fatal("nested secondary binding not parsed")
	}
	if !secondary.IsRef() {
		t.Error("secondary should be a reference")
	}
	if secondary.RefTarget() != "legacy" {
		t.Errorf("secondary ref target = %q", secondary.RefTarget())
	}
}

func TestParsePlugins_AttrsIsolated(t *testing.T) {
	// Атрибуты одной привязки не просачиваются в соседнюю
	cfg, err := Load(writeConfig(t, `
[main]
agents = collector

[collector]
plugin.collection_lister = http.lister
plugin.collection_lister.endpoint = https://a/api
plugin.metadata_reader = http.metadata
plugin.metadata_reader.endpoint = https://b/api
plugin.metadata_reader.timeout = 5
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	collector, _ := cfg.Agent("collector")
	lister := collector.Plugins["collection_lister"]
	reader := collector.Plugins["metadata_reader"]

	if v, _ := lister.Attr("endpoint"); v != "https://a/api" {
		t.Errorf("lister endpoint = %q", v)
	}
	if _, ok := lister.Attr("timeout"); ok {
		t.Error("lister must not see reader's timeout attr")
	}
	if v, _ := reader.Attr("endpoint"); v != "https://b/api" {
		t.Errorf("reader endpoint = %q", v)
	}
}

func TestParsePlugins_MissingImpl(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "top-level attrs without impl",
			content: `
[main]
agents = collector
[collector]
plugin.collection_lister.endpoint = https://a/api
`,
		},
		{
			name: "nested attrs without impl",
			content: `
[main]
agents = carrier
[carrier]
plugin.submitter = fallback.submitter
plugin.submitter.plugin.primary.endpoint = https://a/api
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errorsIsValidation(err, ErrMissingImpl) {
				t.Errorf("expected ErrMissingImpl, got %v", err)
			}
		})
	}
}

func TestParsePlugins_MalformedKey(t *testing.T) {
	_, err := Load(writeConfig(t, `
[main]
agents = collector
[collector]
plugin. = http.lister
`))
	if !errorsIsValidation(err, ErrInvalidPluginKey) {
		t.Errorf("expected ErrInvalidPluginKey, got %v", err)
	}
}

func TestParsePlugins_NestedNamesStable(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[main]
agents = carrier
[carrier]
plugin.submitter = fallback.submitter
plugin.submitter.plugin.zeta = http.submitter
plugin.submitter.plugin.alpha = http.submitter
plugin.submitter.plugin.mid = http.submitter
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	carrier, _ := cfg.Agent("carrier")
	names := carrier.Plugins["submitter"].NestedNames()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("nested names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
