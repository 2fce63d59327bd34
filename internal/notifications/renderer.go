package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/bissquit/fieldservice-sla/internal/sla"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders SLA events from templates.
type Renderer struct {
	templates map[sla.EventKind]*template.Template
	loc       *time.Location
}

// NewRenderer loads the embedded templates. Times are rendered in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = sla.OperatingZone
	}

	r := &Renderer{
		templates: make(map[sla.EventKind]*template.Template),
		loc:       loc,
	}

	funcMap := template.FuncMap{
		"severity":   titleCase[domain.Severity],
		"milestone":  milestoneLabel,
		"reference":  reference,
		"formatTime": r.formatTime,
	}

	for _, kind := range []sla.EventKind{sla.EventKindWarning, sla.EventKindBreach} {
		filename := fmt.Sprintf("templates/%s.tmpl", kind)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(kind)).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		r.templates[kind] = tmpl
	}

	return r, nil
}

// Render returns the subject and body for an event.
func (r *Renderer) Render(ev sla.Event) (subject, body string, err error) {
	tmpl, ok := r.templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", ev.Kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ev); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", ev.Kind, err)
	}

	return r.renderSubject(ev), strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) renderSubject(ev sla.Event) string {
	switch ev.Kind {
	case sla.EventKindWarning:
		return fmt.Sprintf("[SLA Warning] %s fault %s: %s due in %s",
			titleCase(ev.Severity), reference(ev), milestoneLabel(ev.Milestone), ev.Remaining)
	case sla.EventKindBreach:
		return fmt.Sprintf("[SLA Breach] %s fault %s: %s overdue by %s",
			titleCase(ev.Severity), reference(ev), milestoneLabel(ev.Milestone), ev.Overdue)
	}
	return fmt.Sprintf("[SLA] fault %s", reference(ev))
}

func (r *Renderer) formatTime(t time.Time) string {
	return t.In(r.loc).Format("Mon 2 Jan 2006 15:04 MST")
}

// A Caser keeps state between calls, so each call gets its own.
func titleCase[S ~string](s S) string {
	return cases.Title(language.English).String(string(s))
}

func milestoneLabel(m domain.Milestone) string {
	switch m {
	case domain.MilestoneRespond:
		return "response"
	case domain.MilestoneOnsite:
		return "on-site"
	case domain.MilestoneTempRestore:
		return "temporary restore"
	}
	return strings.ReplaceAll(string(m), "_", " ")
}

func reference(ev sla.Event) string {
	if ev.Reference != "" {
		return ev.Reference
	}
	return ev.FaultID
}
