package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/brahman47/breakyourbelljar/domain"
)

type homePage struct {
	Layout
	Featured *PostCard
	Posts    []PostCard
	Empty    emptyState
}

func (h *Handler) GetHome(c echo.Context) error {
	var (
		posts    []domain.Post
		featured *domain.Post
	)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		var err error
		posts, err = h.Content.Posts(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		featured, err = h.Content.FeaturedPost(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return h.contentError(err)
	}

	page := homePage{
		Layout: h.layout(c, "", "", ""),
		Posts:  make([]PostCard, 0, len(posts)),
		Empty: emptyState{
			Title:     h.Site.EmptyTitle,
			Body:      h.Site.EmptyBody,
			StudioURL: h.Site.StudioURL,
		},
	}
	if featured != nil {
		card := h.card(*featured, 1200)
		page.Featured = &card
	}
	for _, p := range posts {
		if featured != nil && p.ID == featured.ID {
			continue
		}
		page.Posts = append(page.Posts, h.card(p, 800))
	}
	return c.Render(http.StatusOK, "home.html", page)
}
