package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/logging"
)

// CredentialSource resolves the active secret for a provider
type CredentialSource interface {
	ActiveCredential(ctx context.Context, provider string) (string, bool, error)
}

type cacheKey struct {
	provider string
	prefix   string
}

// Registry builds adapters on demand and caches one instance per
// (provider, credential prefix). It is safe for concurrent use.
type Registry struct {
	creds        CredentialSource
	options      map[string]Options
	constructors map[string]Constructor
	defaultName  string
	logger       *logging.Logger

	mu    sync.RWMutex
	cache map[cacheKey]Provider
	group singleflight.Group
}

// NewRegistry creates a registry with the built-in constructors.
// options holds the per-provider settings; the APIKey field is ignored in
// favour of the credential source.
func NewRegistry(creds CredentialSource, defaultName string, options map[string]Options, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if options == nil {
		options = map[string]Options{}
	}
	return &Registry{
		creds:        creds,
		options:      options,
		constructors: Constructors(),
		defaultName:  defaultName,
		logger:       logger.Named("llm_registry"),
		cache:        make(map[cacheKey]Provider),
	}
}

// Register adds or replaces a constructor. Call before first use.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// DefaultName returns the provider used when none is requested
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the adapter for name, building it on first use.
// An empty name selects the default provider.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}

	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewProviderError(name, 0, "unsupported provider (supported: openai, anthropic, gemini)", nil)
	}

	secret, found, err := r.creds.ActiveCredential(ctx, name)
	if err != nil {
		return nil, errors.NewProviderError(name, 0, "failed to resolve credential", err)
	}
	if !found || secret == "" {
		return nil, errors.NewProviderAuthError(name, 0, "no active credential configured")
	}

	key := cacheKey{provider: name, prefix: credentialPrefix(secret)}

	r.mu.RLock()
	p, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, _, _ := r.group.Do(key.provider+":"+key.prefix, func() (any, error) {
		r.mu.RLock()
		p, ok := r.cache[key]
		r.mu.RUnlock()
		if ok {
			return p, nil
		}

		opts := r.options[name]
		opts.APIKey = secret
		p = ctor(opts)

		r.mu.Lock()
		r.cache[key] = p
		r.mu.Unlock()

		r.logger.Debug("Provider adapter created",
			logging.String("provider", name),
			logging.String("default_model", p.DefaultModel()),
		)
		return p, nil
	})
	return v.(Provider), nil
}

// Reset drops every cached adapter, e.g. after credentials rotate
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]Provider)
}

// credentialPrefix derives a short stable cache key from a secret without
// keeping the secret itself as a map key
func credentialPrefix(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:16]
}
