package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

// Pages rendered inside base.html.
var Pages = []string{"home.html", "section.html", "post.html", "notfound.html"}

type TemplateRegistry struct {
	templates map[string]*template.Template
}

// NewTemplateRegistry parses every page together with the base layout and
// the shared partials.
func NewTemplateRegistry(funcs template.FuncMap) (*TemplateRegistry, error) {
	t := make(map[string]*template.Template, len(Pages))
	for _, name := range Pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/partials.html",
			"templates/"+name,
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t[name] = tmpl
	}
	return &TemplateRegistry{templates: t}, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half written response.
func (t *TemplateRegistry) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
