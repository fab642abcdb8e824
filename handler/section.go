package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/brahman47/breakyourbelljar/domain"
)

type sectionPage struct {
	Layout
	Heading     string
	Description string
	Accent      string
	Posts       []PostCard
	Empty       emptyState
}

// GetSection renders the listing for one configured category. The category
// document only supplies copy; its absence falls back to the configured text.
func (h *Handler) GetSection(s domain.Section) echo.HandlerFunc {
	return func(c echo.Context) error {
		var (
			posts    []domain.Post
			category *domain.Category
		)
		g, ctx := errgroup.WithContext(c.Request().Context())
		g.Go(func() error {
			var err error
			posts, err = h.Content.PostsInCategory(ctx, s.Slug)
			return err
		})
		g.Go(func() error {
			var err error
			category, err = h.Content.CategoryBySlug(ctx, s.Slug)
			return err
		})
		if err := g.Wait(); err != nil {
			return h.contentError(err)
		}

		heading, description := s.Title, s.Description
		if category != nil {
			if category.Title != "" {
				heading = stripTags(category.Title)
			}
			if category.Description != "" {
				description = category.Description
			}
		}
		accent := s.Accent
		if accent == "" {
			accent = "amber"
		}

		page := sectionPage{
			Layout:      h.layout(c, s.Slug, heading, description),
			Heading:     heading,
			Description: description,
			Accent:      accent,
			Posts:       make([]PostCard, 0, len(posts)),
			Empty: emptyState{
				Title:     s.EmptyTitle,
				Body:      s.EmptyBody,
				StudioURL: h.Site.StudioURL,
			},
		}
		for _, p := range posts {
			page.Posts = append(page.Posts, h.card(p, 800))
		}
		return c.Render(http.StatusOK, "section.html", page)
	}
}
