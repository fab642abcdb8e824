package revalidate

import (
	"fmt"

	"github.com/brahman47/breakyourbelljar/cache"
	"github.com/brahman47/breakyourbelljar/content"
)

type Mode string

const (
	// ModeSite invalidates the whole site on every notification.
	ModeSite Mode = "site"
	// ModeTargeted invalidates the pages and tags derived from the document.
	ModeTargeted Mode = "targeted"
)

// Target is one invalidation instruction: either a path with a scope or a content tag.
type Target struct {
	Path  string      `json:"path,omitempty"`
	Scope cache.Scope `json:"scope,omitempty"`
	Tag   string      `json:"tag,omitempty"`
}

func (t Target) CacheTag() string {
	if t.Tag != "" {
		return cache.ContentTag(t.Tag)
	}
	return cache.PathTag(t.Path, t.Scope)
}

func (t Target) String() string {
	if t.Tag != "" {
		return "tag:" + t.Tag
	}
	return fmt.Sprintf("%s(%s)", t.Path, t.Scope)
}

var siteTarget = Target{Path: "/", Scope: cache.ScopeLayout}

// Planner maps a notification onto invalidation targets.
type Planner struct {
	Mode         Mode
	SectionPaths []string
}

func (p Planner) Plan(n Notification) []Target {
	if p.Mode != ModeTargeted {
		return []Target{siteTarget}
	}

	switch n.Type {
	case "post":
		slug := n.SlugValue()
		if slug == "" {
			return []Target{{Tag: content.TagPost}, siteTarget}
		}
		targets := []Target{
			{Path: "/blog/" + slug, Scope: cache.ScopePage},
			{Path: "/", Scope: cache.ScopePage},
		}
		targets = append(targets, p.sections()...)
		return append(targets, Target{Tag: content.TagPost})
	case "category":
		// category titles appear on every card and article header
		return []Target{{Tag: content.TagCategory}, siteTarget}
	case "author":
		return []Target{{Tag: content.TagAuthor}, siteTarget}
	default:
		return []Target{siteTarget}
	}
}

func (p Planner) sections() []Target {
	out := make([]Target, 0, len(p.SectionPaths))
	for _, path := range p.SectionPaths {
		out = append(out, Target{Path: path, Scope: cache.ScopePage})
	}
	return out
}
