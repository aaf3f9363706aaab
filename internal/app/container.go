// Package app wires the process-wide services using go.uber.org/dig.
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/dig"

	"github.com/user/crmassist/internal/chat"
	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/contextbuilder"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/credentials"
	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/prompts"
	"github.com/user/crmassist/internal/search"
	"github.com/user/crmassist/internal/tools"
)

// Container holds the resolved singletons.
// Callers use the typed getters and never import dig directly.
type Container struct {
	config       *config.Config
	logger       *logging.Logger
	providers    *llm.Registry
	store        conversation.Store
	data         crm.DataAccess
	tools        *tools.Registry
	orchestrator *chat.Orchestrator
}

func (c *Container) Config() *config.Config           { return c.config }
func (c *Container) Logger() *logging.Logger          { return c.logger }
func (c *Container) Providers() *llm.Registry         { return c.providers }
func (c *Container) Store() conversation.Store        { return c.store }
func (c *Container) CRM() crm.DataAccess              { return c.data }
func (c *Container) Tools() *tools.Registry           { return c.tools }
func (c *Container) Orchestrator() *chat.Orchestrator { return c.orchestrator }

// Close releases the conversation store
func (c *Container) Close() error {
	return c.store.Close()
}

// WorkDir locates project files such as .crmassist/prompts
type WorkDir string

// Option overrides a default collaborator
type Option func(*options)

type options struct {
	workDir     string
	credentials credentials.Resolver
	store       conversation.Store
	data        crm.DataAccess
}

// WithWorkDir sets the project directory; default "."
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

// WithCredentials replaces the config-backed credential resolver
func WithCredentials(r credentials.Resolver) Option {
	return func(o *options) { o.credentials = r }
}

// WithStore replaces the store selected by store.dsn
func WithStore(s conversation.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCRM replaces the seeded in-memory CRM
func WithCRM(d crm.DataAccess) Option {
	return func(o *options) { o.data = d }
}

// New builds and wires every service from cfg
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Container, error) {
	o := &options{workDir: "."}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	d := dig.New()
	providers := []any{
		func() *config.Config { return cfg },
		func() *logging.Logger { return logger },
		func() WorkDir { return WorkDir(o.workDir) },
		func() credentials.Resolver {
			if o.credentials != nil {
				return o.credentials
			}
			return credentials.FromConfig(cfg.Providers)
		},
		func() (conversation.Store, error) {
			if o.store != nil {
				return o.store, nil
			}
			return conversation.Open(cfg.Store.DSN)
		},
		func() (crm.DataAccess, error) {
			if o.data != nil {
				return o.data, nil
			}
			return newCRM(cfg, logger)
		},
		newProviderRegistry,
		newPromptManager,
		newSearchBackends,
		newToolRegistry,
		newExecutor,
		newContextBuilder,
		newOrchestrator,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		providers *llm.Registry,
		store conversation.Store,
		data crm.DataAccess,
		registry *tools.Registry,
		orchestrator *chat.Orchestrator,
	) {
		result = &Container{
			config:       cfg,
			logger:       logger,
			providers:    providers,
			store:        store,
			data:         data,
			tools:        registry,
			orchestrator: orchestrator,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire application: %w", dig.RootCause(err))
	}
	return result, nil
}

func newCRM(cfg *config.Config, logger *logging.Logger) (crm.DataAccess, error) {
	store := crm.NewMemoryStore(logger)
	if cfg.CRM.SeedFile != "" {
		if err := store.LoadSeed(cfg.CRM.SeedFile); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ProviderOptions converts the providers section into adapter options
func ProviderOptions(cfg *config.Config) map[string]llm.Options {
	retry := &llm.RetryConfig{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		Multiplier:        cfg.Retry.Multiplier,
		MaxWaitPerAttempt: time.Duration(cfg.Retry.MaxWaitPerAttempt) * time.Second,
		MaxTotalWait:      time.Duration(cfg.Retry.MaxTotalWait) * time.Second,
	}

	out := make(map[string]llm.Options, 3)
	for _, name := range []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini} {
		pc, _ := cfg.Providers.Provider(name)
		out[name] = llm.Options{
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			Models:       pc.Models,
			Timeout:      pc.GetTimeout(),
			MaxTokens:    pc.GetMaxTokens(),
			Retry:        retry,
		}
	}
	return out
}

func newProviderRegistry(cfg *config.Config, creds credentials.Resolver, logger *logging.Logger) *llm.Registry {
	return llm.NewRegistry(creds, cfg.Providers.Default, ProviderOptions(cfg), logger)
}

func newPromptManager(dir WorkDir) (*prompts.Manager, error) {
	return prompts.NewManager(filepath.Join(string(dir), ".crmassist", "prompts"))
}

func newSearchBackends(cfg *config.Config) (tools.SearchBackends, error) {
	sc := cfg.Search
	rps := float64(sc.RateLimit)
	timeout := search.WithTimeout(sc.GetTimeout())
	// cached hits bypass the limiter
	wrap := func(b search.Backend) search.Backend {
		return search.NewCached(search.NewLimited(b, rps), sc.CacheSize, sc.GetCacheTTL())
	}

	backends := tools.SearchBackends{
		Reader:     search.NewReader(sc.GetTimeout(), 0),
		MaxResults: sc.GetMaxResults(),
	}

	if sc.BraveAPIKey != "" {
		b, err := search.NewBrave(sc.BraveAPIKey, timeout)
		if err != nil {
			return backends, err
		}
		backends.Web = wrap(b)
	}
	if sc.YouTubeAPIKey != "" {
		y, err := search.NewYouTube(sc.YouTubeAPIKey, timeout)
		if err != nil {
			return backends, err
		}
		backends.Video = wrap(y)
	}
	if sc.ListenNotesAPIKey != "" {
		l, err := search.NewListenNotes(sc.ListenNotesAPIKey, timeout)
		if err != nil {
			return backends, err
		}
		backends.Podcast = wrap(l)
	}
	return backends, nil
}

func newToolRegistry(backends tools.SearchBackends) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, backends); err != nil {
		return nil, err
	}
	return registry, nil
}

func newExecutor(registry *tools.Registry, data crm.DataAccess, logger *logging.Logger) *tools.Executor {
	return tools.NewExecutor(registry, data, logger)
}

func newContextBuilder(cfg *config.Config, data crm.DataAccess, pm *prompts.Manager, logger *logging.Logger) *contextbuilder.Builder {
	return contextbuilder.NewBuilder(data, pm, contextbuilder.Config{
		Policy: contextbuilder.Policy{
			AllowNotes:    cfg.Privacy.AllowNotes,
			AllowTags:     cfg.Privacy.AllowTags,
			AllowLinkedIn: cfg.Privacy.AllowLinkedIn,
		},
		TokenBudget: cfg.Chat.GetContextTokenBudget(),
	}, logger)
}

func newOrchestrator(
	cfg *config.Config,
	providers *llm.Registry,
	store conversation.Store,
	builder *contextbuilder.Builder,
	registry *tools.Registry,
	executor *tools.Executor,
	pm *prompts.Manager,
	logger *logging.Logger,
) *chat.Orchestrator {
	return chat.NewOrchestrator(chat.Dependencies{
		Providers: providers,
		Store:     store,
		Context:   builder,
		Tools:     registry,
		Executor:  executor,
		Prompts:   pm,
		Logger:    logger,
	}, chat.Options{
		MaxIterations:       cfg.Chat.GetMaxIterations(),
		Temperature:         cfg.Chat.Temperature,
		MaxTokens:           cfg.Chat.MaxTokens,
		MaxToolResultTokens: cfg.Chat.GetMaxToolResultTokens(),
		AbortOnToolError:    cfg.Chat.AbortOnToolError,
		AutoTitle:           cfg.Chat.AutoTitle,
	})
}
