package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
)

// maxWebhookBody caps the payload; notifications carry a small projection.
const maxWebhookBody = "1M"

type revalidateResponse struct {
	Status      int             `json:"status"`
	Revalidated bool            `json:"revalidated"`
	Now         int64           `json:"now"`
	Body        json.RawMessage `json:"body"`
}

// Revalidate receives content change notifications and purges the affected
// cache entries.
func (h *Handler) Revalidate(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		// BodyLimit reports an oversized chunked body while it is read
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	start := time.Now()
	res, err := h.Revalidator.Process(req.Context(), req.Header.Get(revalidate.SignatureHeader), body)
	ev := store.Event{ReceivedAt: start}
	if res != nil {
		ev.Type = res.Notification.Type
		ev.Slug = res.Notification.SlugValue()
		ev.Purged = res.Purged
		for _, t := range res.Targets {
			ev.Targets = append(ev.Targets, t.CacheTag())
		}
	}
	log := h.log().WithFields(logrus.Fields{
		"type":    ev.Type,
		"slug":    ev.Slug,
		"latency": time.Since(start).String(),
	})

	switch {
	case errors.Is(err, revalidate.ErrInvalidSignature):
		ev.Outcome = store.OutcomeUnauthorized
		ev.Error = err.Error()
		h.finish(c, ev)
		log.WithError(err).Warn("webhook rejected")
		return c.String(http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, revalidate.ErrMissingType), errors.Is(err, revalidate.ErrMalformedPayload):
		ev.Outcome = store.OutcomeBadRequest
		ev.Error = err.Error()
		h.finish(c, ev)
		log.WithError(err).Warn("webhook payload rejected")
		return c.String(http.StatusBadRequest, "Bad Request")
	case err != nil:
		ev.Outcome = store.OutcomeFailed
		ev.Error = err.Error()
		h.finish(c, ev)
		log.WithError(err).Error("revalidation failed")
		return c.String(http.StatusInternalServerError, err.Error())
	}

	ev.Outcome = store.OutcomeRevalidated
	h.finish(c, ev)
	h.Metrics.Invalidated(res.Purged)
	log.WithFields(logrus.Fields{"targets": ev.Targets, "purged": res.Purged}).Info("revalidated")

	return c.JSON(http.StatusOK, revalidateResponse{
		Status:      http.StatusOK,
		Revalidated: true,
		Now:         res.At.UnixMilli(),
		Body:        json.RawMessage(body),
	})
}

// finish counts the outcome and appends it to the revalidation log. A log
// failure never changes the response.
func (h *Handler) finish(c echo.Context, ev store.Event) {
	h.Metrics.Webhook(ev.Outcome)
	if h.Events == nil {
		return
	}
	if _, err := h.Events.Record(c.Request().Context(), ev); err != nil {
		h.log().WithError(err).Error("record revalidation event")
	}
}
