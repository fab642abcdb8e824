// Package content is a read-only client for the hosted content API and the
// typed queries the pages run against it.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/metrics"
	"github.com/brahman47/breakyourbelljar/telemetry"
)

type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	UseCDN     bool
	// Token is only needed for private datasets and draft previews.
	Token string
	// BaseURL replaces https://<project>.api.sanity.io, mostly for tests.
	BaseURL  string
	Timeout  time.Duration
	QueryTTL time.Duration
}

// CacheOptions controls how a query result is kept in the data cache.
type CacheOptions struct {
	// Tags are content tags (e.g. "post") a webhook can invalidate.
	Tags []string
	// TTL overrides Config.QueryTTL.
	TTL     time.Duration
	NoStore bool
	// Perspective is passed to the API as is: "published", "previewDrafts" or "raw".
	Perspective string
}

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("content api unavailable")

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content api: %d %s", e.Status, e.Message)
}

type Client struct {
	cfg        Config
	HTTPClient *http.Client
	Cache      cache.Store
	Log        logrus.FieldLogger
	Metrics    *metrics.Metrics
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-11-02"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Client{
		cfg: cfg,
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Log: log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "content-api",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.Status < http.StatusInternalServerError
				}
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) endpoint() string {
	base := c.cfg.BaseURL
	if base == "" {
		host := "api"
		if c.cfg.UseCDN && c.cfg.Token == "" {
			host = "apicdn"
		}
		base = fmt.Sprintf("https://%s.%s.sanity.io", c.cfg.ProjectID, host)
	}
	return fmt.Sprintf("%s/v%s/data/query/%s", strings.TrimRight(base, "/"), c.cfg.APIVersion, c.cfg.Dataset)
}

// Fetch runs a read-only query and returns its JSON result. Results are served
// from and stored in the data cache unless opts.NoStore is set or ctx is in
// preview mode.
func (c *Client) Fetch(ctx context.Context, query string, params map[string]any, opts CacheOptions) (json.RawMessage, error) {
	if IsPreview(ctx) {
		opts.NoStore = true
		opts.Perspective = "previewDrafts"
	}

	encoded, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	key := cacheKey(query, encoded, opts.Perspective)

	ctx, span := telemetry.Tracer().Start(ctx, "content.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("content.tags", opts.Tags),
		attribute.Bool("content.no_store", opts.NoStore),
	)

	useCache := c.Cache != nil && !opts.NoStore
	var version cache.Version
	if useCache {
		val, ok, err := c.Cache.Get(ctx, key)
		if err != nil {
			c.Log.WithError(err).Warn("query cache lookup failed")
		}
		c.Metrics.CacheLookup("query", ok)
		span.SetAttributes(attribute.Bool("cache.hit", ok))
		if ok {
			return val, nil
		}
		// taken before the request so a purge that lands while it is in
		// flight keeps the older result out of the cache
		tags := make([]string, 0, len(opts.Tags)+1)
		for _, t := range opts.Tags {
			tags = append(tags, cache.ContentTag(t))
		}
		tags = append(tags, cache.PathTag("/", cache.ScopeLayout))
		if version, err = c.Cache.Version(ctx, tags...); err != nil {
			c.Log.WithError(err).Warn("query cache version failed")
			useCache = false
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, query, encoded, opts.Perspective)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	result := out.(json.RawMessage)

	if useCache {
		ttl := opts.TTL
		if ttl == 0 {
			ttl = c.cfg.QueryTTL
		}
		stored, err := c.Cache.SetVersioned(ctx, key, result, ttl, version)
		if err != nil {
			c.Log.WithError(err).Warn("query cache store failed")
		} else if !stored {
			c.Log.WithField("tags", opts.Tags).Debug("query result invalidated while in flight, not cached")
		}
	}
	return result, nil
}

// Query runs Fetch and decodes the result into dest.
func (c *Client) Query(ctx context.Context, query string, params map[string]any, opts CacheOptions, dest any) error {
	raw, err := c.Fetch(ctx, query, params, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode query result: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, query string, params url.Values, perspective string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("query", query)
	for k, v := range params {
		q[k] = v
	}
	if perspective != "" {
		q.Set("perspective", perspective)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Metrics.Query("error", time.Since(start))
		return nil, fmt.Errorf("content api request: %w", err)
	}
	defer resp.Body.Close()
	c.Metrics.Query(strconv.Itoa(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Ms     int             `json:"ms"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode content api response: %w", err)
	}
	if len(envelope.Result) == 0 {
		envelope.Result = json.RawMessage("null")
	}
	c.Log.WithFields(logrus.Fields{"ms": envelope.Ms, "status": resp.StatusCode}).Debug("content query")
	return envelope.Result, nil
}

// errorMessage digs the human readable message out of an API error body.
func errorMessage(body []byte) string {
	var e struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(e.Error) > 0 {
		var detail struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(e.Error, &detail) == nil && detail.Description != "" {
			return detail.Description
		}
		var s string
		if json.Unmarshal(e.Error, &s) == nil && e.Message == "" {
			return s
		}
	}
	return e.Message
}

// encodeParams turns query parameters into $name=<json> pairs.
func encodeParams(params map[string]any) (url.Values, error) {
	v := url.Values{}
	for name, value := range params {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode query param %s: %w", name, err)
		}
		v.Set("$"+name, string(b))
	}
	return v, nil
}

func cacheKey(query string, params url.Values, perspective string) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(params.Encode()))
	h.Write([]byte{0})
	h.Write([]byte(perspective))
	return "query:" + hex.EncodeToString(h.Sum(nil))
}

type previewKey struct{}

// WithPreview marks ctx so queries bypass the cache and read drafts.
func WithPreview(ctx context.Context) context.Context {
	return context.WithValue(ctx, previewKey{}, true)
}

func IsPreview(ctx context.Context) bool {
	v, _ := ctx.Value(previewKey{}).(bool)
	return v
}
