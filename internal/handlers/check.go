package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/conversation"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llm"
	"github.com/user/crmassist/internal/logging"
	"github.com/user/crmassist/internal/tools"
	"github.com/user/crmassist/internal/worker_pool"
)

const keyCheckTimeout = 15 * time.Second

// ProviderSource lists and builds provider adapters; *llm.Registry implements it
type ProviderSource interface {
	Names() []string
	DefaultName() string
	Get(ctx context.Context, name string) (llm.Provider, error)
}

type ProviderStatus struct {
	Name         string        `json:"name"`
	Default      bool          `json:"default"`
	Configured   bool          `json:"configured"`
	Valid        bool          `json:"valid"`
	DefaultModel string        `json:"default_model,omitempty"`
	Latency      time.Duration `json:"latency_ns,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type StoreStatus struct {
	DSN       string `json:"dsn"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

type CheckReport struct {
	Healthy   bool             `json:"healthy"`
	Providers []ProviderStatus `json:"providers"`
	Store     StoreStatus      `json:"store"`
	Tools     []string         `json:"tools"`
	Summary   string           `json:"summary"`
}

// CheckHandler validates credentials and the conversation store
type CheckHandler struct {
	*BaseHandler
	providers ProviderSource
	store     conversation.Store
	registry  *tools.Registry
	pool      *worker_pool.WorkerPool
}

func NewCheckHandler(cfg *config.Config, providers ProviderSource, store conversation.Store, registry *tools.Registry, logger *logging.Logger) *CheckHandler {
	return &CheckHandler{
		BaseHandler: NewBaseHandler(cfg, logger),
		providers:   providers,
		store:       store,
		registry:    registry,
		pool:        worker_pool.NewWorkerPool(3),
	}
}

// Handle probes every provider concurrently and the store once
func (h *CheckHandler) Handle(ctx context.Context) (*CheckReport, error) {
	names := h.providers.Names()
	h.Logger.Info("Starting health check", logging.Strings("providers", names))

	tasks := make([]worker_pool.Task[ProviderStatus], 0, len(names))
	for _, name := range names {
		tasks = append(tasks, func(ctx context.Context) (ProviderStatus, error) {
			return h.checkProvider(ctx, name), nil
		})
	}

	report := &CheckReport{}
	for i, r := range worker_pool.Run(ctx, h.pool, tasks) {
		status := r.Value
		if r.Error != nil {
			status = ProviderStatus{Name: names[i], Error: r.Error.Error()}
		}
		status.Default = status.Name == h.providers.DefaultName()
		report.Providers = append(report.Providers, status)
	}

	report.Store = h.checkStore(ctx)
	if h.registry != nil {
		for _, tool := range h.registry.Tools() {
			report.Tools = append(report.Tools, tool.Name)
		}
	}

	report.Healthy = report.Store.Reachable && h.defaultValid(report)
	report.Summary = summarize(report)
	return report, nil
}

func (h *CheckHandler) checkProvider(ctx context.Context, name string) ProviderStatus {
	status := ProviderStatus{Name: name}

	provider, err := h.providers.Get(ctx, name)
	if err != nil {
		if !errors.IsProviderAuth(err) {
			status.Configured = true
		}
		status.Error = err.Error()
		return status
	}
	status.Configured = true
	status.DefaultModel = provider.DefaultModel()

	ctx, cancel := context.WithTimeout(ctx, keyCheckTimeout)
	defer cancel()

	start := time.Now()
	status.Valid = provider.ValidateKey(ctx)
	status.Latency = time.Since(start)
	if !status.Valid {
		status.Error = "credential rejected or provider unreachable"
	}

	h.Logger.Debug("Provider checked",
		logging.String("provider", name),
		logging.Bool("valid", status.Valid),
		logging.Duration("latency", status.Latency),
	)
	return status
}

func (h *CheckHandler) checkStore(ctx context.Context) StoreStatus {
	status := StoreStatus{DSN: redactDSN(h.Config.Store.DSN)}
	if _, err := h.store.ListConversations(ctx, 1); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true
	return status
}

func (h *CheckHandler) defaultValid(report *CheckReport) bool {
	for _, p := range report.Providers {
		if p.Default {
			return p.Valid
		}
	}
	return false
}

func summarize(report *CheckReport) string {
	valid := 0
	for _, p := range report.Providers {
		if p.Valid {
			valid++
		}
	}
	parts := []string{fmt.Sprintf("%d/%d provider(s) valid", valid, len(report.Providers))}
	if report.Store.Reachable {
		parts = append(parts, "store reachable")
	} else {
		parts = append(parts, "store unreachable")
	}
	parts = append(parts, fmt.Sprintf("%d tool(s) registered", len(report.Tools)))
	return strings.Join(parts, "; ")
}

// redactDSN hides the password of a URL-style DSN
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}

func (h *CheckHandler) FormatTextReport(report *CheckReport) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("crmassist health check\n")
	sb.WriteString("======================\n\n")

	sb.WriteString("Providers:\n")
	for _, p := range report.Providers {
		icon := "✅"
		switch {
		case !p.Configured:
			icon = "➖"
		case !p.Valid:
			icon = "❌"
		}
		line := fmt.Sprintf("   %s %s", icon, p.Name)
		if p.Default {
			line += " (default)"
		}
		switch {
		case p.Valid:
			line += fmt.Sprintf(" - %s, %dms", p.DefaultModel, p.Latency.Milliseconds())
		case p.Error != "":
			line += " - " + p.Error
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")

	storeIcon := "✅"
	if !report.Store.Reachable {
		storeIcon = "❌"
	}
	sb.WriteString(fmt.Sprintf("Store: %s %s", storeIcon, report.Store.DSN))
	if report.Store.Error != "" {
		sb.WriteString(" - " + report.Store.Error)
	}
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Tools: %s\n\n", strings.Join(report.Tools, ", ")))
	sb.WriteString("Summary: " + report.Summary + "\n\n")
	return sb.String()
}

func (h *CheckHandler) FormatJSONReport(report *CheckReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
