package prerender

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlugs struct {
	slugs []string
	err   error
}

func (f fakeSlugs) PostSlugs(context.Context) ([]string, error) {
	return f.slugs, f.err
}

type recordingHandler struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]int
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.mu.Unlock()
	if code, ok := h.fail[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func TestPaths(t *testing.T) {
	w := &Warmer{
		Slugs:       fakeSlugs{slugs: []string{"a", "", "b", "a"}},
		StaticPaths: []string{"/", "/reflections", "/"},
	}
	paths, err := w.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/reflections", "/blog/a", "/blog/b"}, paths)
}

func TestRunRendersEveryPage(t *testing.T) {
	h := &recordingHandler{fail: map[string]int{"/blog/gone": http.StatusNotFound}}
	w := &Warmer{
		Handler:     h,
		Slugs:       fakeSlugs{slugs: []string{"a", "gone"}},
		StaticPaths: []string{"/", "/opinions"},
		Concurrency: 2,
	}

	n, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"/", "/opinions", "/blog/a", "/blog/gone"}, h.seen())
}

func TestRunSlugFailure(t *testing.T) {
	h := &recordingHandler{}
	w := &Warmer{Handler: h, Slugs: fakeSlugs{err: errors.New("api down")}}

	n, err := w.Run(context.Background())
	assert.ErrorContains(t, err, "api down")
	assert.Zero(t, n)
	assert.Empty(t, h.seen())
}

func TestRunCancelled(t *testing.T) {
	h := &recordingHandler{}
	w := &Warmer{Handler: h, Slugs: fakeSlugs{slugs: []string{"a", "b"}}, StaticPaths: []string{"/"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestSchedule(t *testing.T) {
	h := &recordingHandler{}
	w := &Warmer{Handler: h, Slugs: fakeSlugs{}, StaticPaths: []string{"/"}}

	_, err := w.Schedule("not a schedule")
	assert.Error(t, err)

	c, err := w.Schedule("@every 1s")
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)
	assert.Eventually(t, func() bool { return len(h.seen()) > 0 }, 3*time.Second, 50*time.Millisecond)
}
