// Package prerender fills the page cache ahead of visitors by rendering every
// known page through the HTTP handler.
package prerender

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brahman47/breakyourbelljar/metrics"
)

const userAgent = "bybj-prerender"

// SlugSource lists the slugs of every post. *content.Client implements it.
type SlugSource interface {
	PostSlugs(ctx context.Context) ([]string, error)
}

type Warmer struct {
	Handler http.Handler
	Slugs   SlugSource
	// StaticPaths are rendered before the posts, e.g. "/" and the sections.
	StaticPaths []string
	Concurrency int
	Log         logrus.FieldLogger
	Metrics     *metrics.Metrics
}

func (w *Warmer) log() logrus.FieldLogger {
	if w.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return w.Log
}

// Paths returns every page to render, without duplicates.
func (w *Warmer) Paths(ctx context.Context) ([]string, error) {
	slugs, err := w.Slugs.PostSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list post slugs: %w", err)
	}
	seen := make(map[string]struct{}, len(w.StaticPaths)+len(slugs))
	paths := make([]string, 0, len(w.StaticPaths)+len(slugs))
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, p := range w.StaticPaths {
		add(p)
	}
	for _, s := range slugs {
		if s != "" {
			add("/blog/" + s)
		}
	}
	return paths, nil
}

// Run renders every page once and returns how many rendered successfully.
// Pages that fail are logged and skipped.
func (w *Warmer) Run(ctx context.Context) (int, error) {
	start := time.Now()
	paths, err := w.Paths(ctx)
	if err != nil {
		return 0, err
	}

	limit := w.Concurrency
	if limit <= 0 {
		limit = 4
	}
	var ok atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u := &url.URL{Path: p}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", userAgent)
			// pages are cached for https visitors, so skip any https redirect
			req.Header.Set("X-Forwarded-Proto", "https")
			rec := httptest.NewRecorder()
			w.Handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				w.log().WithFields(logrus.Fields{"path": p, "status": rec.Code}).Warn("prerender failed")
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	err = g.Wait()

	n := int(ok.Load())
	w.Metrics.Prerendered(n)
	w.log().WithFields(logrus.Fields{
		"pages":   n,
		"total":   len(paths),
		"latency": time.Since(start).String(),
	}).Info("prerender finished")
	return n, err
}

// Schedule runs the warmer on spec (standard five field cron syntax or
// descriptors such as "@every 30m"). Overlapping runs are skipped. The caller
// stops the returned scheduler.
func (w *Warmer) Schedule(spec string) (*cron.Cron, error) {
	logger := cronLogger{w.log()}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	_, err := c.AddFunc(spec, func() {
		if _, err := w.Run(context.Background()); err != nil {
			w.log().WithError(err).Error("scheduled prerender failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("prerender schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
