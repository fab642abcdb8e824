package content

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahman47/breakyourbelljar/cache"
)

func TestPostsInCategoryInvalidatedByCategoryTag(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"result":[{"_id":"p1","title":"A","slug":{"current":"a"}}]}`)
	store := cache.NewMemoryStore()
	c := newTestClient(api, store)
	ctx := context.Background()

	posts, err := c.PostsInCategory(ctx, "opinions")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, `"opinions"`, api.last.Load().URL.Query().Get("$category"))

	_, err = c.PostsInCategory(ctx, "opinions")
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.calls.Load())

	n, err := store.InvalidateTags(ctx, cache.ContentTag(TagCategory))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.PostsInCategory(ctx, "opinions")
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestCategoryBySlugMissing(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"result":null}`)
	c := newTestClient(api, nil)

	category, err := c.CategoryBySlug(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, category)
}

func TestPostSlugsBypassCache(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"result":["a","b"]}`)
	c := newTestClient(api, cache.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		slugs, err := c.PostSlugs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, slugs)
	}
	assert.EqualValues(t, 2, api.calls.Load())
}
