// Package templates renders the model prompts used by the agents.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tpl.md
var templateFS embed.FS

// Name identifies one prompt template.
type Name string

const (
	// ClassifySystem routes a chat message to an action.
	ClassifySystem Name = "prompts/classify_system.tpl.md"

	// DraftSystem is shared by the proposal, expand and revise calls.
	DraftSystem Name = "prompts/draft_system.tpl.md"
	// ProposalsTemplate asks for N proposal summaries as a JSON array.
	ProposalsTemplate Name = "prompts/proposals.tpl.md"
	// ExpandTemplate turns one proposal into a full row.
	ExpandTemplate Name = "prompts/expand.tpl.md"
	// ReviseTemplate applies feedback to a full row.
	ReviseTemplate Name = "prompts/revise.tpl.md"
	// TrendsTemplate is the web research step of the draft pipeline.
	TrendsTemplate Name = "prompts/trends.tpl.md"

	// ResearchSystem is shared by every research stage.
	ResearchSystem Name = "prompts/research_system.tpl.md"
	// ResearchScan surveys platform trends for the topic, with web search.
	ResearchScan Name = "prompts/research_scan.tpl.md"
	// ResearchKeywords analyses search keywords for the topic.
	ResearchKeywords Name = "prompts/research_keywords.tpl.md"
	// ResearchStrategy proposes content from the two scans, without search.
	ResearchStrategy Name = "prompts/research_strategy.tpl.md"
	// ResearchReport assembles the stage outputs into the report file.
	ResearchReport Name = "prompts/research_report.tpl.md"
)

var all = []Name{
	ClassifySystem,
	DraftSystem, ProposalsTemplate, ExpandTemplate, ReviseTemplate, TrendsTemplate,
	ResearchSystem, ResearchScan, ResearchKeywords, ResearchStrategy, ResearchReport,
}

// Renderer holds the parsed templates.
type Renderer struct {
	templates map[Name]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[Name]*template.Template, len(all))}
	funcs := template.FuncMap{
		"join":     strings.Join,
		"contains": strings.Contains,
		"bullets":  bullets,
	}
	for _, name := range all {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Funcs(funcs).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// MustRenderer is NewRenderer for callers that cannot continue without prompts.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes name with data.
func (r *Renderer) Render(name Name, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Names lists every loaded template.
func (r *Renderer) Names() []Name {
	return append([]Name(nil), all...)
}

// bullets renders items as "- item" lines, or fallback when empty.
func bullets(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
