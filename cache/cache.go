// Package cache stores rendered pages and content query results under tags so
// that a webhook can drop everything derived from a path or a content type.
package cache

import (
	"context"
	"strings"
	"time"
)

// Store is a tagged key/value cache. Implementations are safe for concurrent use.
type Store interface {
	// Get reports whether key is present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	// Version captures the invalidation state of tags. Take it before
	// computing a value and store the value with SetVersioned.
	Version(ctx context.Context, tags ...string) (Version, error)
	// SetVersioned stores value under v's tags unless one of them was
	// invalidated, or the store flushed, since v was taken. It reports
	// whether the value was stored.
	SetVersioned(ctx context.Context, key string, value []byte, ttl time.Duration, v Version) (bool, error)
	// InvalidateTags drops every entry carrying any of tags and returns how many were removed.
	InvalidateTags(ctx context.Context, tags ...string) (int, error)
	Flush(ctx context.Context) error
	Close() error
}

// Version is a snapshot of the invalidation generation of a set of tags.
type Version struct {
	tags  []string
	gens  []int64
	epoch int64
}

// Tags returns the tags the snapshot covers.
func (v Version) Tags() []string {
	return v.tags
}

// Scope selects how much of the tree under a path is invalidated.
type Scope string

const (
	// ScopePage drops only the page rendered at the path.
	ScopePage Scope = "page"
	// ScopeLayout drops the path and everything below it.
	ScopeLayout Scope = "layout"
)

func (s Scope) Valid() bool {
	return s == ScopePage || s == ScopeLayout
}

func PageKey(path string) string {
	return "page:" + normalizePath(path)
}

// PathTag is the tag that InvalidatePath(path, scope) drops.
func PathTag(path string, scope Scope) string {
	if scope == ScopeLayout {
		return "layout:" + normalizePath(path)
	}
	return "path:" + normalizePath(path)
}

// ContentTag is the tag for a named content tag such as "post".
func ContentTag(tag string) string {
	return "tag:" + tag
}

// PageTags returns the tags a page rendered at path is stored under: its own
// path tag plus a layout tag for every ancestor, root included.
func PageTags(path string) []string {
	path = normalizePath(path)
	tags := []string{PathTag(path, ScopePage), PathTag("/", ScopeLayout)}
	if path == "/" {
		return tags
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	prefix := ""
	for _, p := range parts {
		prefix += "/" + p
		tags = append(tags, PathTag(prefix, ScopeLayout))
	}
	return tags
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Kind names the backend of a store for health output.
func Kind(s Store) string {
	switch s.(type) {
	case *RedisStore:
		return "redis"
	case *MemoryStore:
		return "memory"
	default:
		return "unknown"
	}
}
