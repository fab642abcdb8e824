package handler

import (
	"context"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/content"
	"github.com/brahman47/breakyourbelljar/domain"
	"github.com/brahman47/breakyourbelljar/metrics"
	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
)

// ContentSource is the read side of the content API used by the pages.
// *content.Client implements it.
type ContentSource interface {
	Posts(ctx context.Context) ([]domain.Post, error)
	FeaturedPost(ctx context.Context) (*domain.Post, error)
	PostBySlug(ctx context.Context, slug string) (*domain.Post, error)
	PostsInCategory(ctx context.Context, categorySlug string) ([]domain.Post, error)
	CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
}

// EventLog is the revalidation log. *store.Events implements it.
type EventLog interface {
	Record(ctx context.Context, e store.Event) (store.Event, error)
	Recent(ctx context.Context, limit int) ([]store.Event, error)
}

type Handler struct {
	Content     ContentSource
	Images      content.ImageBuilder
	Cache       cache.Store
	Revalidator *revalidate.Revalidator
	Events      EventLog
	Log         logrus.FieldLogger
	Metrics     *metrics.Metrics
	Site        domain.Site
	// PageTTL bounds how long a rendered page is served from the cache
	// when no webhook arrives.
	PageTTL time.Duration

	PreviewSecret string
	JWTSecret     string
	AdminSecret   string
	Environment   string
}

// Register mounts every page and API route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.GetHome, h.PreviewMode, h.PageCache)
	for _, s := range h.Site.Sections {
		e.GET(s.Path(), h.GetSection(s), h.PreviewMode, h.PageCache)
	}
	e.GET("/blog/:slug", h.GetPost, h.PreviewMode, h.PageCache)

	e.POST("/api/revalidate", h.Revalidate, middleware.BodyLimit(maxWebhookBody))
	e.GET("/api/draft", h.EnableDraft)
	e.GET("/api/draft/disable", h.DisableDraft)

	admin := e.Group("/api/admin", echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(h.AdminSecret),
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing admin token").SetInternal(err)
		},
	}))
	admin.GET("/revalidations", h.GetRevalidations)
	admin.POST("/purge", h.Purge)
}

func (h *Handler) log() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}

// Layout is the data every page passes to base.html.
type Layout struct {
	Site            domain.Site
	Active          string
	PageTitle       string
	PageDescription string
	Preview         bool
	Year            int
}

func (h *Handler) layout(c echo.Context, active, title, description string) Layout {
	return Layout{
		Site:            h.Site,
		Active:          active,
		PageTitle:       title,
		PageDescription: description,
		Preview:         content.IsPreview(c.Request().Context()),
		Year:            time.Now().Year(),
	}
}

type emptyState struct {
	Title     string
	Body      string
	StudioURL string
}
