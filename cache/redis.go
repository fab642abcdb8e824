package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries as plain string keys and every tag as a Redis set
// holding the keys stored under it. All keys share Prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + "entry:" + key
}

func (s *RedisStore) tagKey(tag string) string {
	return s.prefix + "tagset:" + tag
}

func (s *RedisStore) genKey(tag string) string {
	return s.prefix + "gen:" + tag
}

func (s *RedisStore) epochKey() string {
	return s.prefix + "epoch"
}

// KEYS: tag sets then generation keys. ARGV[1]: entry key prefix.
var invalidateScript = redis.NewScript(`
local n = #KEYS / 2
local removed = 0
for i = 1, n do
  redis.call('INCR', KEYS[n + i])
  local members = redis.call('SMEMBERS', KEYS[i])
  for _, m in ipairs(members) do
    removed = removed + redis.call('DEL', ARGV[1] .. m)
  end
  redis.call('DEL', KEYS[i])
end
return removed
`)

// KEYS: entry, epoch, generation keys, tag sets.
// ARGV: value, ttl in ms, epoch, generations, member.
var setVersionedScript = redis.NewScript(`
local n = (#KEYS - 2) / 2
if tonumber(redis.call('GET', KEYS[2]) or '0') ~= tonumber(ARGV[3]) then
  return 0
end
for i = 1, n do
  if tonumber(redis.call('GET', KEYS[2 + i]) or '0') ~= tonumber(ARGV[3 + i]) then
    return 0
  end
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
for i = 1, n do
  redis.call('SADD', KEYS[2 + n + i], ARGV[4 + n])
end
return 1
`)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(key), value, ttl)
	for _, t := range tags {
		pipe.SAdd(ctx, s.tagKey(t), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateTags bumps the generation of every tag and drops the entries the
// tag sets list in one script, so a concurrent SetVersioned either lands before
// the purge and is removed or sees the new generation and is refused.
func (s *RedisStore) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, 2*len(tags))
	for _, t := range tags {
		keys = append(keys, s.tagKey(t))
	}
	for _, t := range tags {
		keys = append(keys, s.genKey(t))
	}
	n, err := invalidateScript.Run(ctx, s.client, keys, s.entryKey("")).Int()
	if err != nil {
		return 0, fmt.Errorf("redis invalidate %v: %w", tags, err)
	}
	return n, nil
}

func (s *RedisStore) Version(ctx context.Context, tags ...string) (Version, error) {
	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, s.epochKey())
	for _, t := range tags {
		keys = append(keys, s.genKey(t))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Version{}, fmt.Errorf("redis version: %w", err)
	}
	nums := make([]int64, len(vals))
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue
		}
		if nums[i], err = strconv.ParseInt(str, 10, 64); err != nil {
			return Version{}, fmt.Errorf("redis version %s: %w", keys[i], err)
		}
	}
	return Version{
		tags:  append([]string(nil), tags...),
		gens:  nums[1:],
		epoch: nums[0],
	}, nil
}

func (s *RedisStore) SetVersioned(ctx context.Context, key string, value []byte, ttl time.Duration, v Version) (bool, error) {
	n := len(v.tags)
	keys := make([]string, 0, 2+2*n)
	keys = append(keys, s.entryKey(key), s.epochKey())
	for _, t := range v.tags {
		keys = append(keys, s.genKey(t))
	}
	for _, t := range v.tags {
		keys = append(keys, s.tagKey(t))
	}

	ms := ttl.Milliseconds()
	if ttl > 0 && ms == 0 {
		ms = 1
	}
	args := make([]interface{}, 0, 4+n)
	args = append(args, value, ms, v.epoch)
	for _, g := range v.gens {
		args = append(args, g)
	}
	args = append(args, key)

	stored, err := setVersionedScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return stored == 1, nil
}

// Flush deletes every entry and tag set under the prefix using SCAN so large keyspaces are
// not blocked by KEYS.
func (s *RedisStore) Flush(ctx context.Context) error {
	// writes versioned before the flush are refused from here on
	if err := s.client.Incr(ctx, s.epochKey()).Err(); err != nil {
		return fmt.Errorf("redis incr epoch: %w", err)
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		// generations only ever grow so snapshots can not match again
		keys = slices.DeleteFunc(keys, func(k string) bool {
			return k == s.epochKey() || strings.HasPrefix(k, s.genKey(""))
		})
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
