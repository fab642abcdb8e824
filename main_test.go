package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahman47/breakyourbelljar/config"
	"github.com/brahman47/breakyourbelljar/revalidate"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"slug=hello", "limit=3", "draft=true", "q=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"slug":  "hello",
		"limit": float64(3),
		"draft": true,
		"q":     "a=b",
	}, p)

	_, err = parseParams([]string{"noequals"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestSignCommand(t *testing.T) {
	body := []byte(`{"_type":"post","slug":{"current":"hello"}}`)
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"sign", "--secret", "whsec", "-"})
	cmd.SetIn(bytes.NewReader(body))
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	line := strings.TrimSpace(out.String())
	prefix := revalidate.SignatureHeader + ": "
	require.True(t, strings.HasPrefix(line, prefix), line)
	header := strings.TrimPrefix(line, prefix)
	assert.NoError(t, revalidate.Verify([]byte("whsec"), header, body, time.Now(), 0))
}

func testConfig(t *testing.T, contentURL string) *config.Config {
	t.Helper()
	v := config.New()
	v.Set("env", config.DevEnv)
	v.Set("db.url", filepath.Join(t.TempDir(), "test.db"))
	v.Set("content.base_url", contentURL)
	v.Set("webhook.consistency_delay", "0s")
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestAppRoutes(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":null}`)
	}))
	defer api.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := newApp(context.Background(), testConfig(t, api.URL), log)
	require.NoError(t, err)
	defer a.close(log)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","cache":"memory"}`, rec.Body.String())

	rec = get("/static/site.css")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/favicon.ico")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = get("/blog/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message"`)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAppRevalidateWebhook(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":null}`)
	}))
	defer api.Close()

	cfg := testConfig(t, api.URL)
	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := newApp(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.close(log)

	body := `{"_type":"post","slug":{"current":"hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(body))
	req.Header.Set(revalidate.SignatureHeader, revalidate.Sign([]byte(cfg.Webhook.Secret), []byte(body), time.Now()))
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revalidated":true`)

	req = httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(body))
	req.Header.Set(revalidate.SignatureHeader, "t=1,v1=bad")
	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFetchCommandNeedsNoServerSecrets(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"hello"`, r.URL.Query().Get("$slug"))
		io.WriteString(w, `{"result":{"title":"Hello"}}`)
	}))
	defer api.Close()
	t.Setenv("BYBJ_ENV", config.ProEnv)
	t.Setenv("BYBJ_CONTENT_BASE_URL", api.URL)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"fetch", `*[slug.current == $slug][0]{title}`, "--param", "slug=hello"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `{"title":"Hello"}`, out.String())
}

func TestSignCommandSecretFromConfig(t *testing.T) {
	t.Setenv("BYBJ_ENV", config.ProEnv)
	t.Setenv("BYBJ_WEBHOOK_SECRET", "from-env")
	body := []byte(`{"_type":"post"}`)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"sign", "-"})
	cmd.SetIn(bytes.NewReader(body))
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	header := strings.TrimPrefix(strings.TrimSpace(out.String()), revalidate.SignatureHeader+": ")
	assert.NoError(t, revalidate.Verify([]byte("from-env"), header, body, time.Now(), 0))

	t.Setenv("BYBJ_WEBHOOK_SECRET", "")
	t.Setenv("SANITY_WEBHOOK_SECRET", "")
	cmd = newRootCmd()
	cmd.SetArgs([]string{"sign", "-"})
	cmd.SetIn(bytes.NewReader(body))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook secret")
}

func TestAutoTLSRedirectsPlainRequests(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Address = ""
	cfg.CertCache = t.TempDir()
	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := newApp(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.close(log)

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/healthz", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/healthz", rec.Header().Get("Location"))

	// in process requests such as the prerenderer's mark themselves as https
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
