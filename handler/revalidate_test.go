package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/domain"
	"github.com/brahman47/breakyourbelljar/revalidate"
	"github.com/brahman47/breakyourbelljar/store"
)

type countingPurger struct {
	revalidate.Purger
	calls int
	tags  [][]string
	err   error
}

func (p *countingPurger) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	p.calls++
	p.tags = append(p.tags, tags)
	if p.err != nil {
		return 0, p.err
	}
	return p.Purger.InvalidateTags(ctx, tags...)
}

func webhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(revalidate.SignatureHeader, signature)
	}
	return req
}

func sign(body string) string {
	return revalidate.Sign([]byte(webhookSecret), []byte(body), time.Now())
}

func primedServer(t *testing.T) (*testServer, *countingPurger) {
	t.Helper()
	first := samplePost("a", "first", "First Story")
	second := samplePost("b", "second", "Second Story")
	s := newTestServer(t, &fakeContent{
		posts:  []domain.Post{first, second},
		bySlug: map[string]*domain.Post{"first": &first, "second": &second},
	})
	p := &countingPurger{Purger: s.cache}
	s.h.Revalidator.Purger = p

	for _, path := range []string{"/", "/blog/first", "/blog/second", "/reflections"} {
		rec := s.get(path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "MISS", rec.Header().Get("X-Cache"), path)
	}
	require.Equal(t, 4, s.cache.Len())
	return s, p
}

func TestRevalidateTamperedSignature(t *testing.T) {
	s, p := primedServer(t)
	body := `{"_type":"post","slug":{"current":"first"}}`

	for _, sig := range []string{
		"",
		"garbage",
		sign(`{"_type":"post","slug":{"current":"second"}}`),
		revalidate.Sign([]byte("other-secret"), []byte(body), time.Now()),
	} {
		rec := s.do(webhookRequest(body, sig))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid signature", rec.Body.String())
	}

	assert.Zero(t, p.calls)
	assert.Equal(t, 4, s.cache.Len())
	assert.Equal(t, "HIT", s.get("/").Header().Get("X-Cache"))
	assert.Equal(t, []string{
		store.OutcomeUnauthorized, store.OutcomeUnauthorized,
		store.OutcomeUnauthorized, store.OutcomeUnauthorized,
	}, s.events.outcomes())
}

func TestRevalidateWithoutSecretRejectsEverything(t *testing.T) {
	s, p := primedServer(t)
	s.h.Revalidator.Secret = nil
	body := `{"_type":"post"}`

	rec := s.do(webhookRequest(body, sign(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, p.calls)
}

func TestRevalidateBadPayload(t *testing.T) {
	s, p := primedServer(t)

	for _, body := range []string{`{"slug":{"current":"first"}}`, `{"_type":""}`, `{`} {
		rec := s.do(webhookRequest(body, sign(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Bad Request", rec.Body.String())
	}
	assert.Zero(t, p.calls)
	assert.Equal(t, 4, s.cache.Len())
	assert.Equal(t, []string{store.OutcomeBadRequest, store.OutcomeBadRequest, store.OutcomeBadRequest}, s.events.outcomes())
}

func TestRevalidateOversizedBody(t *testing.T) {
	s, p := primedServer(t)
	body := `{"_type":"post","pad":"` + strings.Repeat("x", 1<<20) + `"}`

	for _, chunked := range []bool{false, true} {
		req := webhookRequest(body, sign(body))
		if chunked {
			req.ContentLength = -1
		}
		rec := s.do(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "chunked=%v", chunked)
	}
	assert.Zero(t, p.calls)
	assert.Equal(t, 4, s.cache.Len())
}

func TestRevalidateSiteMode(t *testing.T) {
	s, p := primedServer(t)
	body := `{"_type":"post","slug":{"current":"first"}}`

	before := time.Now().UnixMilli()
	rec := s.do(webhookRequest(body, sign(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status      int             `json:"status"`
		Revalidated bool            `json:"revalidated"`
		Now         int64           `json:"now"`
		Body        json.RawMessage `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Revalidated)
	assert.GreaterOrEqual(t, resp.Now, before)
	assert.JSONEq(t, body, string(resp.Body))

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, [][]string{{"layout:/"}}, p.tags)
	assert.Zero(t, s.cache.Len())
	assert.Equal(t, "MISS", s.get("/blog/second").Header().Get("X-Cache"))

	events, err := s.events.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.OutcomeRevalidated, events[0].Outcome)
	assert.Equal(t, "post", events[0].Type)
	assert.Equal(t, "first", events[0].Slug)
	assert.Equal(t, 4, events[0].Purged)
}

func TestRevalidateTargetedMode(t *testing.T) {
	s, p := primedServer(t)
	s.h.Revalidator.Planner.Mode = revalidate.ModeTargeted
	body := `{"_type":"post","slug":{"current":"first"}}`

	rec := s.do(webhookRequest(body, sign(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, p.calls)

	ctx := context.Background()
	for path, cached := range map[string]bool{
		"/":            false,
		"/blog/first":  false,
		"/reflections": false,
		"/blog/second": true,
	} {
		_, ok, err := s.cache.Get(ctx, cache.PageKey(path))
		require.NoError(t, err)
		assert.Equal(t, cached, ok, path)
	}
}

func TestRevalidatePurgeFailure(t *testing.T) {
	s, p := primedServer(t)
	p.err = errors.New("cache offline")
	body := `{"_type":"category"}`

	rec := s.do(webhookRequest(body, sign(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache offline")
	assert.Equal(t, []string{store.OutcomeFailed}, s.events.outcomes())
}
