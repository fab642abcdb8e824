package handler

import (
	"bufio"
	"bytes"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/content"
)

const cacheHeader = "X-Cache"

// PageCache serves rendered pages from the cache and stores fresh 200
// responses under the tags of their path. Preview requests bypass it.
func (h *Handler) PageCache(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if h.Cache == nil || req.Method != http.MethodGet || content.IsPreview(req.Context()) {
			return next(c)
		}

		path := req.URL.Path
		key := cache.PageKey(path)
		body, ok, err := h.Cache.Get(req.Context(), key)
		if err != nil {
			h.log().WithError(err).WithField("path", path).Warn("page cache lookup failed")
		}
		h.Metrics.CacheLookup("page", ok)
		if ok {
			c.Response().Header().Set(cacheHeader, "HIT")
			return c.HTMLBlob(http.StatusOK, body)
		}

		c.Response().Header().Set(cacheHeader, "MISS")
		// a webhook that purges these tags while the page renders makes the
		// render stale, and SetVersioned then refuses it
		version, verr := h.Cache.Version(req.Context(), cache.PageTags(path)...)
		if verr != nil {
			h.log().WithError(verr).WithField("path", path).Warn("page cache version failed")
		}
		res := c.Response()
		rec := &bodyRecorder{ResponseWriter: res.Writer}
		res.Writer = rec
		err = next(c)
		res.Writer = rec.ResponseWriter
		if err != nil {
			return err
		}

		if verr == nil && res.Status == http.StatusOK && rec.buf.Len() > 0 {
			stored, err := h.Cache.SetVersioned(req.Context(), key, rec.buf.Bytes(), h.PageTTL, version)
			switch {
			case err != nil:
				h.log().WithError(err).WithField("path", path).Warn("page cache store failed")
			case !stored:
				h.log().WithField("path", path).Debug("page invalidated while rendering, not cached")
			default:
				h.log().WithFields(logrus.Fields{"path": path, "bytes": rec.buf.Len()}).Debug("page cached")
			}
		}
		return nil
	}
}

// bodyRecorder copies everything written to the client into buf.
type bodyRecorder struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *bodyRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *bodyRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
