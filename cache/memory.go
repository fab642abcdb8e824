package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	tags      []string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore keeps entries in process memory. A janitor goroutine drops
// expired entries once a minute until Close is called.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
	// gens counts invalidations per tag; epoch counts flushes.
	gens  map[string]int64
	epoch int64
	now   func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
		gens:    make(map[string]int64),
		now:     time.Now,
		ticker:  time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	go s.cleanupExpired()
	return s
}

func (s *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, e := range s.entries {
				if e.expired(now) {
					s.removeLocked(key)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		s.removeLocked(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	e := memoryEntry{
		value: append([]byte(nil), value...),
		tags:  append([]string(nil), tags...),
	}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, e)
	return nil
}

func (s *MemoryStore) Version(_ context.Context, tags ...string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := Version{
		tags:  append([]string(nil), tags...),
		gens:  make([]int64, len(tags)),
		epoch: s.epoch,
	}
	for i, t := range tags {
		v.gens[i] = s.gens[t]
	}
	return v, nil
}

func (s *MemoryStore) SetVersioned(_ context.Context, key string, value []byte, ttl time.Duration, v Version) (bool, error) {
	e := memoryEntry{
		value: append([]byte(nil), value...),
		tags:  append([]string(nil), v.tags...),
	}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v.epoch != s.epoch {
		return false, nil
	}
	for i, t := range v.tags {
		if s.gens[t] != v.gens[i] {
			return false, nil
		}
	}
	s.setLocked(key, e)
	return true, nil
}

// setLocked replaces key with e. s.mu must be held.
func (s *MemoryStore) setLocked(key string, e memoryEntry) {
	if _, ok := s.entries[key]; ok {
		s.removeLocked(key)
	}
	s.entries[key] = e
	for _, t := range e.tags {
		set, ok := s.tags[t]
		if !ok {
			set = make(map[string]struct{})
			s.tags[t] = set
		}
		set[key] = struct{}{}
	}
}

func (s *MemoryStore) InvalidateTags(_ context.Context, tags ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, t := range tags {
		s.gens[t]++
		for key := range s.tags[t] {
			if _, ok := s.entries[key]; ok {
				s.removeLocked(key)
				removed++
			}
		}
		delete(s.tags, t)
	}
	return removed, nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	s.tags = make(map[string]map[string]struct{})
	s.epoch++
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

// Len returns the number of live and not yet collected entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// removeLocked deletes key and its tag memberships. s.mu must be held.
func (s *MemoryStore) removeLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	for _, t := range e.tags {
		if set, ok := s.tags[t]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(s.tags, t)
			}
		}
	}
}
