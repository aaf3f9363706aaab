// Package prompts loads the assistant's prompt templates. Embedded defaults
// ship with the binary; YAML files under .crmassist/prompts replace them key
// by key. Templates are compiled once at load.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaults embed.FS

const (
	ChatSystem          = "chat_system"
	EntityContextHeader = "entity_context_header"
	// Title is a pair: title_system and title_user
	Title = "title"
)

var requiredPrompts = []string{ChatSystem, EntityContextHeader, Title + "_system", Title + "_user"}

const (
	sourceEmbedded = "system"
	sourceProject  = "project"
)

type prompt struct {
	text   string
	tmpl   *template.Template
	source string // "<origin>:<file>"
}

// Manager renders named prompt templates
type Manager struct {
	prompts map[string]prompt
}

// PromptTemplate is a rendered system and user prompt pair
type PromptTemplate struct {
	SystemPrompt string
	UserPrompt   string
}

// NewManager loads the embedded defaults, then any YAML files in projectDir.
// A missing projectDir is not an error.
func NewManager(projectDir string) (*Manager, error) {
	m := &Manager{prompts: make(map[string]prompt)}

	if err := m.load(defaults, "defaults", sourceEmbedded); err != nil {
		return nil, fmt.Errorf("embedded prompts: %w", err)
	}
	if projectDir != "" {
		if info, err := os.Stat(projectDir); err == nil && info.IsDir() {
			if err := m.load(os.DirFS(projectDir), ".", sourceProject); err != nil {
				return nil, fmt.Errorf("prompts in %s: %w", projectDir, err)
			}
		}
	}

	var missing []string
	for _, name := range requiredPrompts {
		if !m.HasPrompt(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required prompts: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

// NewDefaultManager panics if the embedded prompts do not load
func NewDefaultManager() *Manager {
	m, err := NewManager("")
	if err != nil {
		panic(err)
	}
	return m
}

// NewManagerFromMap compiles prompts from a map, for tests.
// Templates that fail to parse are skipped.
func NewManagerFromMap(texts map[string]string) *Manager {
	m := &Manager{prompts: make(map[string]prompt, len(texts))}
	for name, text := range texts {
		_ = m.add(name, text, "test:map")
	}
	return m
}

func (m *Manager) load(fsys fs.FS, dir, origin string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		var texts map[string]string
		if err := yaml.Unmarshal(data, &texts); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		for name, text := range texts {
			if err := m.add(name, text, origin+":"+e.Name()); err != nil {
				return fmt.Errorf("%s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func (m *Manager) add(name, text, source string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return err
	}
	m.prompts[name] = prompt{text: text, tmpl: tmpl, source: source}
	return nil
}

// Get returns the raw template text of a prompt
func (m *Manager) Get(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q (have: %s)", name, strings.Join(m.names(), ", "))
	}
	return p.text, nil
}

// Render executes a prompt with vars. Referencing a variable that was not
// supplied is an error.
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderTemplate renders the <name>_system and <name>_user pair
func (m *Manager) RenderTemplate(name string, vars map[string]any) (*PromptTemplate, error) {
	system, err := m.Render(name+"_system", vars)
	if err != nil {
		return nil, err
	}
	user, err := m.Render(name+"_user", vars)
	if err != nil {
		return nil, err
	}
	return &PromptTemplate{SystemPrompt: system, UserPrompt: user}, nil
}

func (m *Manager) HasPrompt(name string) bool {
	_, ok := m.prompts[name]
	return ok
}

// GetSource reports where a prompt came from, e.g. "project:custom.yaml"
func (m *Manager) GetSource(name string) string {
	if p, ok := m.prompts[name]; ok {
		return p.source
	}
	return "unknown"
}

// ListOverrides returns the sorted names of prompts loaded from the project
func (m *Manager) ListOverrides() []string {
	var out []string
	for name, p := range m.prompts {
		if strings.HasPrefix(p.source, sourceProject+":") {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (m *Manager) names() []string {
	out := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
