package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/acme/autocert"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/config"
	"github.com/brahman47/breakyourbelljar/content"
	"github.com/brahman47/breakyourbelljar/domain"
	"github.com/brahman47/breakyourbelljar/handler"
	"github.com/brahman47/breakyourbelljar/metrics"
	"github.com/brahman47/breakyourbelljar/prerender"
	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
	"github.com/brahman47/breakyourbelljar/telemetry"
	"github.com/brahman47/breakyourbelljar/web"
)

const shutdownTimeout = 10 * time.Second

// app holds everything serve starts and stops.
type app struct {
	echo    *echo.Echo
	cache   cache.Store
	closers []func() error
}

func (a *app) close(log logrus.FieldLogger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("close")
		}
	}
}

// newApp wires the content client, caches, revalidation log and routes.
// It does not start listening.
func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a.cache = cache.NewWithFallback(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix, log)
	a.closers = append(a.closers, a.cache.Close)

	client := content.NewClient(contentConfig(cfg))
	client.Cache = a.cache
	client.Log = log.WithField("component", "content")
	client.Metrics = m

	site := domain.DefaultSite()

	h := &handler.Handler{
		Content: client,
		Images:  client.Images(),
		Cache:   a.cache,
		Revalidator: &revalidate.Revalidator{
			Secret:           []byte(cfg.Webhook.Secret),
			Tolerance:        cfg.Webhook.Tolerance,
			ConsistencyDelay: cfg.Webhook.ConsistencyDelay,
			Planner: revalidate.Planner{
				Mode:         revalidate.Mode(cfg.Webhook.Mode),
				SectionPaths: site.SectionPaths(),
			},
			Purger: a.cache,
		},
		Log:           log,
		Metrics:       m,
		Site:          site,
		PageTTL:       cfg.Cache.PageTTL,
		PreviewSecret: cfg.Secrets.Preview,
		JWTSecret:     cfg.Secrets.JWT,
		AdminSecret:   cfg.Secrets.Admin,
		Environment:   cfg.Env,
	}

	// The site keeps serving when the revalidation log cannot be opened.
	db, err := store.Open(cfg.DB.Driver, cfg.DB.URL)
	if err != nil {
		log.WithError(err).Error("revalidation log disabled")
	} else {
		h.Events = &store.Events{DB: db}
		a.closers = append(a.closers, db.Close)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if cfg.Address == "" {
		// Cache certificates to avoid issues with rate limits (https://letsencrypt.org/docs/rate-limits)
		e.AutoTLSManager.Cache = autocert.DirCache(cfg.CertCache)
		if cfg.WhitelistHost != "" {
			e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(cfg.WhitelistHost)
		}
		e.Pre(middleware.HTTPSRedirect())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(log))
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware(cfg.Telemetry.ServiceName)))

	renderer, err := web.NewTemplateRegistry(nil)
	if err != nil {
		a.close(log)
		return nil, err
	}
	e.Renderer = renderer
	e.HTTPErrorHandler = handler.HTTPErrorHandler(web.Assets(), log)

	h.Register(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"cache":  cache.Kind(a.cache),
		})
	})
	e.StaticFS("/static", web.Static())
	e.GET("/favicon.ico", func(c echo.Context) error {
		icon, err := fs.ReadFile(web.Static(), "favicon.svg")
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "image/svg+xml", icon)
	})

	if cfg.Prerender.Enabled {
		w := &prerender.Warmer{
			Handler:     e,
			Slugs:       client,
			StaticPaths: append([]string{"/"}, site.SectionPaths()...),
			Concurrency: cfg.Prerender.Concurrency,
			Log:         log.WithField("component", "prerender"),
			Metrics:     m,
		}
		c, err := w.Schedule(cfg.Prerender.Schedule)
		if err != nil {
			a.close(log)
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			<-c.Stop().Done()
			return nil
		})
		go func() {
			if _, err := w.Run(ctx); err != nil {
				log.WithError(err).Warn("initial prerender")
			}
		}()
	}

	a.echo = e
	return a, nil
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
				"cache":      c.Response().Header().Get("X-Cache"),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}

// serve runs the site until ctx is cancelled. Without an address it serves
// HTTPS on :443 with certificates from Let's Encrypt.
func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Env,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	e := a.echo

	errc := make(chan error, 1)
	go func() {
		if cfg.Address != "" {
			log.WithField("address", cfg.Address).Info("listening")
			errc <- e.Start(cfg.Address)
			return
		}
		log.Info("listening on :443 with autocert")
		errc <- e.StartAutoTLS(":443")
	}()

	select {
	case err = <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	a.close(log)
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		log.WithError(terr).Warn("tracing shutdown")
	}
	return err
}
