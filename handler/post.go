package handler

import (
	"errors"
	"fmt"
	stdhtml "html"
	"html/template"
	"net/http"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"github.com/brahman47/breakyourbelljar/content"
	"github.com/brahman47/breakyourbelljar/domain"
)

var (
	sanitizerStrict = bluemonday.StrictPolicy()
	sanitizerUGC    = bluemonday.UGCPolicy()
)

const (
	longDate  = "January 2, 2006"
	shortDate = "Jan 2"
)

// PostCard is a post as shown in listings.
type PostCard struct {
	ID          string
	Title       string
	Path        string
	Excerpt     string
	Category    string
	Author      string
	PublishedAt string
	Date        string
	ShortDate   string
	ImageURL    string
	ImageAlt    string
}

type GalleryImage struct {
	URL     string
	Alt     string
	Caption string
}

// PostView is the article page.
type PostView struct {
	PostCard
	ImageCaption string
	Body         template.HTML
	Gallery      []GalleryImage
}

func (h *Handler) card(p domain.Post, imageWidth int) PostCard {
	title := stripTags(p.Title)
	c := PostCard{
		ID:          p.ID,
		Title:       title,
		Path:        p.Path(),
		Excerpt:     p.Excerpt,
		PublishedAt: p.PublishedAt,
	}
	if cat := p.PrimaryCategory(); cat != nil {
		c.Category = cat.Title
	}
	if p.Author != nil {
		c.Author = p.Author.Name
	}
	if t := p.PublishedTime(); !t.IsZero() {
		c.Date = t.Format(longDate)
		c.ShortDate = t.Format(shortDate)
	}
	if p.MainImage != nil {
		c.ImageURL = h.Images.URL(p.MainImage, content.ImageOptions{Width: imageWidth})
		c.ImageAlt = p.MainImage.Alt
		if c.ImageAlt == "" {
			c.ImageAlt = title
		}
	}
	return c
}

func (h *Handler) view(p domain.Post) PostView {
	v := PostView{PostCard: h.card(p, 1600)}
	if p.MainImage != nil {
		v.ImageCaption = p.MainImage.Caption
	}
	md := domain.Markdown(p.Body, func(img domain.Image) string {
		return h.Images.URL(&img, content.ImageOptions{Width: 1200})
	})
	v.Body = safeMd(md)
	for i, img := range p.Gallery {
		g := GalleryImage{
			URL:     h.Images.URL(&img, content.ImageOptions{Width: 800}),
			Alt:     img.Alt,
			Caption: img.Caption,
		}
		if g.URL == "" {
			continue
		}
		if g.Alt == "" {
			g.Alt = fmt.Sprintf("Gallery image %d", i+1)
		}
		v.Gallery = append(v.Gallery, g)
	}
	return v
}

type postPage struct {
	Layout
	Post PostView
}

type notFoundPage struct {
	Layout
	Message string
}

func (h *Handler) GetPost(c echo.Context) error {
	slug := c.Param("slug")
	post, err := h.Content.PostBySlug(c.Request().Context(), slug)
	if err != nil {
		return h.contentError(err)
	}
	if post == nil {
		return c.Render(http.StatusNotFound, "notfound.html", notFoundPage{
			Layout:  h.layout(c, "", "Post not found", ""),
			Message: "Post not found",
		})
	}

	active := ""
	if cat := post.PrimaryCategory(); cat != nil && cat.Slug != nil {
		if _, ok := h.Site.Section(cat.Slug.Current); ok {
			active = cat.Slug.Current
		}
	}
	v := h.view(*post)
	return c.Render(http.StatusOK, "post.html", postPage{
		Layout: h.layout(c, active, v.Title, post.Excerpt),
		Post:   v,
	})
}

// contentError turns a content API failure into the HTTP error the error
// handler renders.
func (h *Handler) contentError(err error) error {
	if errors.Is(err, content.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable).SetInternal(err)
	}
	return fmt.Errorf("content: %w", err)
}

// stripTags drops any markup from s. The result is plain text and is escaped
// again by the templates.
func stripTags(s string) string {
	return stdhtml.UnescapeString(sanitizerStrict.Sanitize(s))
}

func mdToHTML(md string) []byte {
	// create markdown parser with extensions
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	opts := html.RendererOptions{Flags: htmlFlags}
	renderer := html.NewRenderer(opts)

	return markdown.Render(doc, renderer)
}

func safeMd(md string) template.HTML {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	return template.HTML(sanitizerUGC.SanitizeBytes(mdToHTML(md)))
}
