// Package revalidate turns signed content webhooks into cache invalidations.
package revalidate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brahman47/breakyourbelljar/domain"
)

// Notification is the projection the content studio sends.
type Notification struct {
	Type string       `json:"_type"`
	Slug *domain.Slug `json:"slug,omitempty"`
}

func (n Notification) SlugValue() string {
	if n.Slug == nil {
		return ""
	}
	return n.Slug.Current
}

// Decode parses a webhook body and requires _type.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.Type == "" {
		return Notification{}, ErrMissingType
	}
	return n, nil
}

// Purger drops cache entries by tag. cache.Store satisfies it.
type Purger interface {
	InvalidateTags(ctx context.Context, tags ...string) (int, error)
}

type Revalidator struct {
	Secret    []byte
	Tolerance time.Duration
	// ConsistencyDelay gives the content lake time to serve the new revision
	// before pages refetch it.
	ConsistencyDelay time.Duration
	Planner          Planner
	Purger           Purger
	Now              func() time.Time
}

type Result struct {
	Notification Notification
	Targets      []Target
	Purged       int
	At           time.Time
}

func (r *Revalidator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Process verifies, decodes and applies one webhook. Errors wrap
// ErrInvalidSignature, ErrMalformedPayload or ErrMissingType for rejected
// requests; anything else is an internal failure.
func (r *Revalidator) Process(ctx context.Context, signature string, body []byte) (*Result, error) {
	if err := Verify(r.Secret, signature, body, r.now(), r.Tolerance); err != nil {
		return nil, err
	}

	if r.ConsistencyDelay > 0 {
		timer := time.NewTimer(r.ConsistencyDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	n, err := Decode(body)
	if err != nil {
		return nil, err
	}

	res := &Result{Notification: n, Targets: r.Planner.Plan(n)}
	res.Purged, err = r.Purge(ctx, res.Targets)
	if err != nil {
		return res, err
	}
	res.At = r.now()
	return res, nil
}

// Purge applies targets in a single call, each distinct cache tag once.
func (r *Revalidator) Purge(ctx context.Context, targets []Target) (int, error) {
	seen := make(map[string]struct{}, len(targets))
	tags := make([]string, 0, len(targets))
	for _, t := range targets {
		tag := t.CacheTag()
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return 0, nil
	}
	n, err := r.Purger.InvalidateTags(ctx, tags...)
	if err != nil {
		return n, fmt.Errorf("invalidate %v: %w", tags, err)
	}
	return n, nil
}
