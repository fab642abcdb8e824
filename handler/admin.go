package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
)

var validate = validator.New()

const (
	defaultEventLimit = 20
	maxEventLimit     = 200
)

func (h *Handler) GetRevalidations(c echo.Context) error {
	if h.Events == nil {
		return echo.NewHTTPError(http.StatusNotFound, "revalidation log disabled")
	}
	limit := defaultEventLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxEventLimit)
	}
	events, err := h.Events.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

// PurgeRequest names what to drop. An empty request flushes the whole cache.
type PurgeRequest struct {
	Path  string `json:"path" validate:"omitempty,startswith=/,max=512"`
	Scope string `json:"scope" validate:"omitempty,oneof=page layout"`
	Tag   string `json:"tag" validate:"omitempty,max=64"`
}

type purgeResponse struct {
	Flushed bool     `json:"flushed"`
	Purged  int      `json:"purged"`
	Targets []string `json:"targets"`
}

// Purge invalidates cache entries on demand.
func (h *Handler) Purge(c echo.Context) error {
	req := new(PurgeRequest)
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Scope != "" && req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scope requires path")
	}
	ctx := c.Request().Context()

	ev := store.Event{Outcome: store.OutcomePurged}
	resp := purgeResponse{Targets: []string{}}
	if req.Path == "" && req.Tag == "" {
		if err := h.Cache.Flush(ctx); err != nil {
			return err
		}
		resp.Flushed = true
		ev.Targets = []string{"*"}
	} else {
		var targets []revalidate.Target
		if req.Path != "" {
			scope := cache.Scope(req.Scope)
			if scope == "" {
				scope = cache.ScopePage
			}
			targets = append(targets, revalidate.Target{Path: req.Path, Scope: scope})
		}
		if req.Tag != "" {
			targets = append(targets, revalidate.Target{Tag: req.Tag})
		}
		n, err := h.Revalidator.Purge(ctx, targets)
		if err != nil {
			return err
		}
		resp.Purged = n
		for _, t := range targets {
			resp.Targets = append(resp.Targets, t.CacheTag())
		}
		ev.Targets = resp.Targets
		ev.Purged = n
		h.Metrics.Invalidated(n)
	}

	h.log().WithFields(logrus.Fields{"path": req.Path, "tag": req.Tag, "purged": resp.Purged}).Info("manual purge")
	if h.Events != nil {
		if _, err := h.Events.Record(ctx, ev); err != nil {
			h.log().WithError(err).Error("record purge event")
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// AdminToken mints a bearer token for the admin API.
func AdminToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
