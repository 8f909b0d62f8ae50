package service

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// Prompt roles.
const (
	PromptRoleSpecialist = "specialist"
	PromptRoleSynthesis  = "synthesis"
)

// PromptMeta is the frontmatter of an embedded prompt template.
type PromptMeta struct {
	Name        string `yaml:"-" json:"name"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Role        string `yaml:"role" json:"role"`
}

// PromptRenderer renders prompts from templates.
type PromptRenderer struct {
	templates map[string]*template.Template
	meta      map[string]PromptMeta
	mu        sync.RWMutex
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := newPromptRenderer()
	if err := r.loadTemplates(promptsFS); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	return r, nil
}

func newPromptRenderer() *PromptRenderer {
	return &PromptRenderer{
		templates: make(map[string]*template.Template),
		meta:      make(map[string]PromptMeta),
	}
}

// loadTemplates loads all templates from fsys.
func (r *PromptRenderer) loadTemplates(fsys fs.FS) error {
	return fs.WalkDir(fsys, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		name := strings.TrimPrefix(path, "prompts/")
		name = strings.TrimSuffix(name, ".md.tmpl")

		meta, body, err := splitFrontmatter(content)
		if err != nil {
			return fmt.Errorf("parsing frontmatter of %s: %w", name, err)
		}
		meta.Name = name
		if err := validatePromptMeta(meta); err != nil {
			return fmt.Errorf("prompt %s: %w", name, err)
		}

		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(body)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}

		r.templates[name] = tmpl
		r.meta[name] = meta
		return nil
	})
}

// splitFrontmatter separates a leading "---" YAML block from the template body.
func splitFrontmatter(content []byte) (PromptMeta, string, error) {
	var meta PromptMeta
	text := strings.ReplaceAll(string(content), "\r\n", "\n")

	if !strings.HasPrefix(text, "---\n") {
		return meta, text, fmt.Errorf("missing frontmatter")
	}
	rest := strings.TrimPrefix(text, "---\n")
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return meta, text, fmt.Errorf("unterminated frontmatter")
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return meta, text, err
	}
	return meta, rest[end+len("\n---\n"):], nil
}

func validatePromptMeta(m PromptMeta) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required")
	}
	switch m.Role {
	case PromptRoleSpecialist, PromptRoleSynthesis:
		return nil
	default:
		return fmt.Errorf("invalid role %q", m.Role)
	}
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"indent":    indent,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// SpecialistPromptParams feeds a stage-1 template.
type SpecialistPromptParams struct {
	Specialist string
	Report     string
}

// SynthesisPromptParams feeds the synthesis template. Input is the formatted
// collection of specialist outcomes.
type SynthesisPromptParams struct {
	Team        string
	Specialists []string
	Input       string
}

// RenderSpecialist renders a specialist prompt.
func (r *PromptRenderer) RenderSpecialist(name string, params SpecialistPromptParams) (string, error) {
	return r.render(name, params)
}

// RenderSynthesis renders the synthesis prompt.
func (r *PromptRenderer) RenderSynthesis(name string, params SynthesisPromptParams) (string, error) {
	return r.render(name, params)
}

// Render renders a template by name with the given data.
func (r *PromptRenderer) Render(name string, data interface{}) (string, error) {
	return r.render(name, data)
}

// render executes a template with the given data.
func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	return buf.String(), nil
}

// ListTemplates returns available template names, sorted.
func (r *PromptRenderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate checks if a template exists.
func (r *PromptRenderer) HasTemplate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Meta returns the frontmatter of a template.
func (r *PromptRenderer) Meta(name string) (PromptMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[name]
	return m, ok
}

// ListPrompts returns metadata for every embedded prompt, sorted by name.
func ListPrompts() ([]PromptMeta, error) {
	r, err := NewPromptRenderer()
	if err != nil {
		return nil, err
	}
	names := r.ListTemplates()
	out := make([]PromptMeta, 0, len(names))
	for _, name := range names {
		m, _ := r.Meta(name)
		out = append(out, m)
	}
	return out, nil
}
