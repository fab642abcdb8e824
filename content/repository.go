package content

import (
	"context"

	"github.com/brahman47/breakyourbelljar/domain"
)

// Content tags attached to cached query results. A webhook for a document of
// the same _type invalidates them.
const (
	TagPost     = "post"
	TagCategory = "category"
	TagAuthor   = "author"
)

var postTags = []string{TagPost, TagCategory, TagAuthor}

// Posts lists every published post, newest first.
func (c *Client) Posts(ctx context.Context) ([]domain.Post, error) {
	var posts []domain.Post
	err := c.Query(ctx, postsQuery, nil, CacheOptions{Tags: postTags}, &posts)
	return posts, err
}

// FeaturedPost returns the newest post flagged featured, or nil.
func (c *Client) FeaturedPost(ctx context.Context) (*domain.Post, error) {
	var post *domain.Post
	err := c.Query(ctx, featuredPostQuery, nil, CacheOptions{Tags: postTags}, &post)
	return post, err
}

// PostBySlug returns nil when no post has the slug.
func (c *Client) PostBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	var post *domain.Post
	err := c.Query(ctx, postQuery, map[string]any{"slug": slug}, CacheOptions{Tags: postTags}, &post)
	if err != nil {
		return nil, err
	}
	if post != nil {
		post.DeriveExcerpt()
	}
	return post, nil
}

func (c *Client) PostsInCategory(ctx context.Context, categorySlug string) ([]domain.Post, error) {
	var posts []domain.Post
	err := c.Query(ctx, postsInCategoryQuery, map[string]any{"category": categorySlug}, CacheOptions{Tags: postTags}, &posts)
	return posts, err
}

// CategoryBySlug returns nil when the category document does not exist.
func (c *Client) CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var category *domain.Category
	err := c.Query(ctx, categoryQuery, map[string]any{"slug": slug}, CacheOptions{Tags: []string{TagCategory}}, &category)
	return category, err
}

// PostSlugs lists the slug of every post; the prerenderer walks it.
func (c *Client) PostSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	err := c.Query(ctx, postSlugsQuery, nil, CacheOptions{Tags: []string{TagPost}, NoStore: true}, &slugs)
	return slugs, err
}
