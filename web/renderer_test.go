package web

import (
	"bytes"
	"html/template"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahman47/breakyourbelljar/domain"
)

type layout struct {
	Site            domain.Site
	Active          string
	PageTitle       string
	PageDescription string
	Preview         bool
	Year            int
}

type empty struct {
	Title, Body, StudioURL string
}

func TestRendererUnknownTemplate(t *testing.T) {
	r, err := NewTemplateRegistry(nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	assert.Error(t, r.Render(&buf, "missing.html", nil, nil))
	assert.Zero(t, buf.Len())
}

func TestRendererNotFoundPage(t *testing.T) {
	r, err := NewTemplateRegistry(template.FuncMap{})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.Render(&buf, "notfound.html", struct {
		layout
		Message string
	}{
		layout:  layout{Site: domain.DefaultSite(), Active: "opinions", Year: 2024, Preview: true},
		Message: "Post not found",
	}, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Post not found")
	assert.Contains(t, out, `href="/opinions" class="nav-link active"`)
	assert.Contains(t, out, `href="/reflections" class="nav-link"`)
	assert.Contains(t, out, "Exit preview")
	assert.Contains(t, out, "&copy; 2024 Break Your Bell Jar")
}

func TestRendererSectionEmptyState(t *testing.T) {
	r, err := NewTemplateRegistry(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.Render(&buf, "section.html", struct {
		layout
		Heading     string
		Description string
		Accent      string
		Posts       []struct{}
		Empty       empty
	}{
		layout:  layout{Site: domain.DefaultSite()},
		Heading: "Reflections",
		Accent:  "amber",
		Empty:   empty{Title: "No reflections yet", Body: "Create one", StudioURL: "http://localhost:3333"},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No reflections yet")
	assert.Contains(t, buf.String(), "accent-amber")
	assert.NotContains(t, buf.String(), "Exit preview")
}

func TestAssets(t *testing.T) {
	for _, name := range []string{"404.html", "500.html", "static/site.css", "static/favicon.svg"} {
		_, err := fs.Stat(Assets(), name)
		assert.NoError(t, err, name)
	}
	_, err := fs.Stat(Static(), "site.css")
	assert.NoError(t, err)
}
