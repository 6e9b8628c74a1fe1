package llm

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prismbot/prism/internal/config"
)

// fakeHandle is a stub model handle carrying its build resolution so tests
// can observe credentials and identity.
type fakeHandle struct {
	res    Resolution
	serial int64
}

func (h *fakeHandle) Provider() string { return h.res.ProviderType }
func (h *fakeHandle) ModelID() string  { return h.res.Model }

func (h *fakeHandle) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	return &GenerateResult{Text: "ok"}, nil
}

func fakeBuilder(counter *int64) BuildFunc {
	return func(res Resolution) (Handle, error) {
		return &fakeHandle{res: res, serial: atomic.AddInt64(counter, 1)}, nil
	}
}

func testLLMSettings() config.LLMSettings {
	return config.LLMSettings{
		Providers: map[string]config.ProviderSettings{
			"openai":    {APIKey: "sk-test"},
			"anthropic": {APIKey: "sk-ant-test"},
		},
		Default:            config.ModelSpec{Model: "openai/gpt-4o"},
		Tiers:              map[string]config.ModelSpec{},
		Roles:              map[string]config.ModelSpec{},
		MaxConcurrentCalls: 3,
		Timeout:            5,
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("openai/gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Provider != "openai" || spec.Model != "gpt-4o" {
		t.Fatalf("parsed %+v", spec)
	}

	for _, bad := range []string{"gpt-4o", "a/b/c", "/gpt-4o", "openai/", ""} {
		if _, err := ParseSpec(bad); err == nil {
			t.Errorf("ParseSpec(%q) accepted", bad)
		}
	}
}

func TestGetCachesByResolvedTuple(t *testing.T) {
	var counter int64
	cfg := testLLMSettings()
	cfg.Roles["default"] = config.ModelSpec{Model: "openai/gpt-4o"}
	cfg.Roles["reflection"] = config.ModelSpec{Model: "openai/gpt-4o"}
	reg := NewRegistry(cfg, nil, WithBuildFunc(fakeBuilder(&counter)))

	h1, err := reg.Get("default")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := reg.Get("reflection")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("two roles resolving to the same tuple got distinct handles")
	}
	if reg.CachedCount() != 1 {
		t.Fatalf("cached %d handles, want 1", reg.CachedCount())
	}
	if atomic.LoadInt64(&counter) != 1 {
		t.Fatalf("build ran %d times, want 1", counter)
	}
}

func TestRoleFallsBackToTierThenDefault(t *testing.T) {
	var counter int64
	cfg := testLLMSettings()
	cfg.Tiers["fast"] = config.ModelSpec{Model: "anthropic/claude-haiku-4-5"}
	reg := NewRegistry(cfg, nil, WithBuildFunc(fakeBuilder(&counter)))

	h, err := reg.Get("fast")
	if err != nil {
		t.Fatal(err)
	}
	if h.ModelID() != "claude-haiku-4-5" {
		t.Fatalf("tier resolution got model %s", h.ModelID())
	}

	h, err = reg.Get("unconfigured-role")
	if err != nil {
		t.Fatal(err)
	}
	if h.ModelID() != "gpt-4o" {
		t.Fatalf("default fallback got model %s", h.ModelID())
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	cfg := testLLMSettings()
	cfg.Default = config.ModelSpec{Model: "mystery/model-1"}
	reg := NewRegistry(cfg, nil)

	_, err := reg.Get("default")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v, want provider not found", err)
	}
}

func TestCustomProviderRequiresExplicitType(t *testing.T) {
	cfg := testLLMSettings()
	cfg.Providers["my-proxy"] = config.ProviderSettings{APIKey: "k"}
	cfg.Default = config.ModelSpec{Model: "my-proxy/gpt-4o"}
	reg := NewRegistry(cfg, nil)

	_, err := reg.Get("default")
	if err == nil || !strings.Contains(err.Error(), "type") {
		t.Fatalf("error = %v, want explicit type requirement", err)
	}

	var counter int64
	cfg.Providers["my-proxy"] = config.ProviderSettings{APIKey: "k", Type: "openai"}
	reg = NewRegistry(cfg, nil, WithBuildFunc(fakeBuilder(&counter)))
	if _, err := reg.Get("default"); err != nil {
		t.Fatalf("explicitly typed provider rejected: %v", err)
	}
}

// Codex credential rotation must evict exactly the codex handles; an
// unrelated openai handle keeps its identity.
func TestCodexCredentialInvalidation(t *testing.T) {
	var counter int64
	cfg := testLLMSettings()
	cfg.Default = config.ModelSpec{Model: "codex/gpt-5.3-codex"}
	cfg.Tiers["compact"] = config.ModelSpec{Model: "openai/gpt-4o"}
	reg := NewRegistry(cfg, nil, WithBuildFunc(fakeBuilder(&counter)))

	reg.SetCodexCredentials(CodexCredentials{AccessToken: "v1", ExpiresAt: time.Now().Add(time.Hour)}, "")

	codex1, err := reg.Get("default")
	if err != nil {
		t.Fatal(err)
	}
	openai1, err := reg.Get("compact")
	if err != nil {
		t.Fatal(err)
	}

	reg.SetCodexCredentials(CodexCredentials{AccessToken: "v2", ExpiresAt: time.Now().Add(time.Hour)}, "")

	codex2, err := reg.Get("default")
	if err != nil {
		t.Fatal(err)
	}
	openai2, err := reg.Get("compact")
	if err != nil {
		t.Fatal(err)
	}

	if codex1 == codex2 {
		t.Fatal("codex handle survived credential rotation")
	}
	if openai1 != openai2 {
		t.Fatal("openai sibling handle lost its identity on codex rotation")
	}
}

func TestOAuthCredentialInvalidationScopedToProviderType(t *testing.T) {
	var counter int64
	cfg := testLLMSettings()
	cfg.Roles["default"] = config.ModelSpec{Model: "anthropic/claude-sonnet-4-5"}
	cfg.Roles["compact"] = config.ModelSpec{Model: "openai/gpt-4o"}
	reg := NewRegistry(cfg, nil, WithBuildFunc(fakeBuilder(&counter)))

	anth1, _ := reg.Get("default")
	open1, _ := reg.Get("compact")

	if err := reg.SetOAuthCredentials("anthropic", OAuthCredentials{AccessToken: "tok"}, "", ""); err != nil {
		t.Fatal(err)
	}

	anth2, _ := reg.Get("default")
	open2, _ := reg.Get("compact")

	if anth1 == anth2 {
		t.Fatal("anthropic handle survived credential change")
	}
	if open1 != open2 {
		t.Fatal("openai handle evicted by anthropic credential change")
	}
}

func TestGetContextWindow(t *testing.T) {
	cfg := testLLMSettings()
	cfg.Roles["default"] = config.ModelSpec{Model: "openai/gpt-4o"}
	cfg.Roles["big"] = config.ModelSpec{Model: "openai/gpt-4o", ContextWindow: 999}
	reg := NewRegistry(cfg, nil)

	if got := reg.GetContextWindow("big"); got != 999 {
		t.Fatalf("role override window = %d, want 999", got)
	}
	if got := reg.GetContextWindow("default"); got != 128000 {
		t.Fatalf("catalog window = %d, want 128000", got)
	}
}

func TestCatalogLongestPrefixWins(t *testing.T) {
	if got := CatalogContextWindow("gpt-4-turbo-2024"); got != 128000 {
		t.Fatalf("gpt-4-turbo window = %d, want 128000", got)
	}
	if got := CatalogContextWindow("gpt-4-0613"); got != 8192 {
		t.Fatalf("gpt-4 window = %d, want 8192", got)
	}
	if got := CatalogContextWindow("unknown-model"); got != 0 {
		t.Fatalf("unknown model window = %d, want 0", got)
	}
}
