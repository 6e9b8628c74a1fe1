package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prismbot/prism/internal/config"
	"github.com/prismbot/prism/internal/observability"
)

// wellKnownTypes are provider names whose type is inferred from the name
// itself. Custom provider names must declare an explicit type.
var wellKnownTypes = map[string]string{
	"openai":    "openai",
	"anthropic": "anthropic",
	"codex":     "codex",
	"copilot":   "copilot",
}

type cacheKey struct {
	providerType string
	model        string
	apiType      string
}

// CodexCredentials hold OAuth material for the Codex provider.
type CodexCredentials struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
	ExpiresAt    time.Time
}

// OAuthCredentials hold OAuth material for a configured provider.
type OAuthCredentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type oauthEntry struct {
	creds   OAuthCredentials
	path    string
	baseURL string
}

// BuildFunc constructs a handle for a resolution. Overridable in tests.
type BuildFunc func(res Resolution) (Handle, error)

// Resolution is the fully resolved input to handle construction.
type Resolution struct {
	ProviderType string
	Model        string
	APIType      string
	APIKey       string
	BaseURL      string
}

// Registry resolves role/tier model specs to cached handles and owns
// provider credentials. Changing a provider's credentials evicts exactly
// that provider's cached handles; siblings keep their identity.
type Registry struct {
	mu    sync.Mutex
	cfg   config.LLMSettings
	cache map[cacheKey]Handle
	build BuildFunc
	log   *observability.Logger

	// sem bounds concurrent inflight Generate calls across all handles.
	sem         chan struct{}
	callTimeout time.Duration

	codexCreds   *CodexCredentials
	codexBaseURL string

	copilotToken   string
	copilotBaseURL string
	copilotPath    string

	oauth map[string]oauthEntry
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithBuildFunc overrides handle construction. Tests use this to install
// fake handles without network clients.
func WithBuildFunc(build BuildFunc) RegistryOption {
	return func(r *Registry) { r.build = build }
}

// NewRegistry creates a model registry from LLM settings.
func NewRegistry(cfg config.LLMSettings, log *observability.Logger, opts ...RegistryOption) *Registry {
	maxCalls := cfg.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 3
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if log == nil {
		log = observability.NewTestLogger()
	}
	r := &Registry{
		cfg:         cfg,
		cache:       make(map[cacheKey]Handle),
		sem:         make(chan struct{}, maxCalls),
		callTimeout: timeout,
		oauth:       make(map[string]oauthEntry),
		log:         log,
	}
	r.build = r.buildHandle
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// specFor returns the model spec configured for a role or tier name,
// falling back to the default spec.
func (r *Registry) specFor(role string) (config.ModelSpec, error) {
	if spec, ok := r.cfg.Roles[role]; ok && !spec.IsZero() {
		return spec, nil
	}
	if spec, ok := r.cfg.Tiers[role]; ok && !spec.IsZero() {
		return spec, nil
	}
	if !r.cfg.Default.IsZero() {
		return r.cfg.Default, nil
	}
	return config.ModelSpec{}, fmt.Errorf("no model configured for role %q and no default set", role)
}

// resolveType maps a provider name to its resolved provider type, applying
// explicit config first and well-known inference second.
func (r *Registry) resolveType(provider string) (string, error) {
	entry, configured := r.cfg.Providers[provider]
	if configured && entry.Type != "" {
		return entry.Type, nil
	}
	if typ, ok := wellKnownTypes[provider]; ok {
		return typ, nil
	}
	if !configured {
		return "", fmt.Errorf("provider %q not found", provider)
	}
	return "", fmt.Errorf("provider %q requires explicit \"type\"", provider)
}

// Get resolves the handle for a role or tier. Two roles resolving to the
// same (providerType, model, apiType) tuple share one handle.
func (r *Registry) Get(role string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, err := r.specFor(role)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseSpec(spec.Model)
	if err != nil {
		return nil, err
	}
	providerType, err := r.resolveType(parsed.Provider)
	if err != nil {
		return nil, err
	}

	key := cacheKey{providerType: providerType, model: parsed.Model, apiType: spec.APIType}
	if handle, ok := r.cache[key]; ok {
		return handle, nil
	}

	res := r.resolutionLocked(parsed.Provider, providerType, parsed.Model, spec.APIType)
	inner, err := r.build(res)
	if err != nil {
		return nil, err
	}
	handle := &throttledHandle{inner: inner, sem: r.sem, timeout: r.callTimeout}
	r.cache[key] = handle
	return handle, nil
}

// resolutionLocked assembles credentials and endpoint for handle
// construction. Caller holds r.mu.
func (r *Registry) resolutionLocked(provider, providerType, model, apiType string) Resolution {
	res := Resolution{ProviderType: providerType, Model: model, APIType: apiType}
	if entry, ok := r.cfg.Providers[provider]; ok {
		res.APIKey = entry.APIKey
		res.BaseURL = entry.BaseURL
	}
	switch providerType {
	case "codex":
		if r.codexCreds != nil {
			res.APIKey = r.codexCreds.AccessToken
		}
		if r.codexBaseURL != "" {
			res.BaseURL = r.codexBaseURL
		} else if r.cfg.Codex.BaseURL != "" {
			res.BaseURL = r.cfg.Codex.BaseURL
		}
	case "copilot":
		if r.copilotToken != "" {
			res.APIKey = r.copilotToken
		}
		if r.copilotBaseURL != "" {
			res.BaseURL = r.copilotBaseURL
		}
	default:
		if entry, ok := r.oauth[provider]; ok && entry.creds.AccessToken != "" {
			res.APIKey = entry.creds.AccessToken
			if entry.baseURL != "" {
				res.BaseURL = entry.baseURL
			}
		}
	}
	return res
}

// GetContextWindow returns the context window for a role: the role-scoped
// override when present, else the default spec's override, else the catalog
// default for the model name (0 when unknown).
func (r *Registry) GetContextWindow(role string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, err := r.specFor(role)
	if err != nil {
		return 0
	}
	if spec.ContextWindow > 0 {
		return spec.ContextWindow
	}
	if r.cfg.Default.ContextWindow > 0 {
		return r.cfg.Default.ContextWindow
	}
	if parsed, err := ParseSpec(spec.Model); err == nil {
		return CatalogContextWindow(parsed.Model)
	}
	return 0
}

// SetCodexCredentials stores Codex credentials and evicts every cached
// handle resolved to the codex provider type.
func (r *Registry) SetCodexCredentials(creds CodexCredentials, baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codexCreds = &creds
	if baseURL != "" {
		r.codexBaseURL = baseURL
	}
	r.evictLocked("codex")
}

// SetCopilotCredentials stores the Copilot token and evicts the copilot
// provider's cached handles.
func (r *Registry) SetCopilotCredentials(token, baseURL, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.copilotToken = token
	r.copilotBaseURL = baseURL
	r.copilotPath = path
	r.evictLocked("copilot")
}

// SetOAuthCredentials stores credentials for a configured provider and
// evicts the cached handles whose resolved provider type matches that
// provider. Sibling providers keep their cached identity.
func (r *Registry) SetOAuthCredentials(provider string, creds OAuthCredentials, path, baseURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	providerType, err := r.resolveType(provider)
	if err != nil {
		return err
	}
	r.oauth[provider] = oauthEntry{creds: creds, path: path, baseURL: baseURL}
	r.evictLocked(providerType)
	return nil
}

// evictLocked removes cached handles keyed by the given provider type.
// Caller holds r.mu.
func (r *Registry) evictLocked(providerType string) {
	for key := range r.cache {
		if key.providerType == providerType {
			delete(r.cache, key)
		}
	}
}

// CachedCount returns the number of cached handles.
func (r *Registry) CachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// throttledHandle enforces the global concurrent-call bound and per-call
// timeout around the inner handle.
type throttledHandle struct {
	inner   Handle
	sem     chan struct{}
	timeout time.Duration
}

func (h *throttledHandle) Provider() string { return h.inner.Provider() }
func (h *throttledHandle) ModelID() string  { return h.inner.ModelID() }

func (h *throttledHandle) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return nil, &TimeoutError{LLMError{
			Provider: h.inner.Provider(),
			Model:    h.inner.ModelID(),
			Message:  "cancelled waiting for call slot",
			Err:      ctx.Err(),
		}}
	}
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.inner.Generate(callCtx, req)
}

// buildHandle constructs a real provider handle for the resolution.
func (r *Registry) buildHandle(res Resolution) (Handle, error) {
	switch protocolFor(res.ProviderType, res.APIType) {
	case "openai":
		return newOpenAIHandle(res), nil
	case "anthropic":
		return newAnthropicHandle(res), nil
	default:
		return nil, fmt.Errorf("provider type %q has no supported protocol", res.ProviderType)
	}
}

// protocolFor maps a resolved provider type (and optional apiType override)
// to the wire protocol. Codex and Copilot speak the OpenAI-compatible API.
func protocolFor(providerType, apiType string) string {
	if apiType != "" {
		return apiType
	}
	switch providerType {
	case "openai", "codex", "copilot":
		return "openai"
	case "anthropic":
		return "anthropic"
	}
	return ""
}
