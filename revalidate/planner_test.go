package revalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/domain"
)

func TestPlanner(t *testing.T) {
	targeted := Planner{Mode: ModeTargeted, SectionPaths: []string{"/reflections"}}
	site := Target{Path: "/", Scope: cache.ScopeLayout}

	tests := []struct {
		name    string
		planner Planner
		n       Notification
		want    []Target
	}{
		{
			name:    "site mode ignores type",
			planner: Planner{Mode: ModeSite},
			n:       Notification{Type: "post", Slug: &domain.Slug{Current: "a"}},
			want:    []Target{site},
		},
		{
			name:    "empty mode behaves as site",
			planner: Planner{},
			n:       Notification{Type: "category"},
			want:    []Target{site},
		},
		{
			name:    "post with slug",
			planner: targeted,
			n:       Notification{Type: "post", Slug: &domain.Slug{Current: "a"}},
			want: []Target{
				{Path: "/blog/a", Scope: cache.ScopePage},
				{Path: "/", Scope: cache.ScopePage},
				{Path: "/reflections", Scope: cache.ScopePage},
				{Tag: "post"},
			},
		},
		{
			name:    "post without slug",
			planner: targeted,
			n:       Notification{Type: "post"},
			want:    []Target{{Tag: "post"}, site},
		},
		{
			name:    "category",
			planner: targeted,
			n:       Notification{Type: "category"},
			want:    []Target{{Tag: "category"}, site},
		},
		{
			name:    "author",
			planner: targeted,
			n:       Notification{Type: "author"},
			want:    []Target{{Tag: "author"}, site},
		},
		{
			name:    "unknown type",
			planner: targeted,
			n:       Notification{Type: "siteSettings"},
			want:    []Target{site},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.planner.Plan(tt.n))
		})
	}
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "/(layout)", Target{Path: "/", Scope: cache.ScopeLayout}.String())
	assert.Equal(t, "tag:post", Target{Tag: "post"}.String())
	assert.Equal(t, "tag:post", Target{Tag: "post"}.CacheTag())
	assert.Equal(t, "path:/blog/a", Target{Path: "/blog/a", Scope: cache.ScopePage}.CacheTag())
}
