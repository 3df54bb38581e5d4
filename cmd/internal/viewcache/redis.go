package viewcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	scanBatch = 200

	// genSegment separates invalidation counters from view keys inside the namespace.
	genSegment = "~gen|"
)

// setIfCurrent stores ARGV[2] at KEYS[1] (PX ARGV[3] when positive) only when the
// counters in KEYS[2..] still sum to ARGV[1].
var setIfCurrent = redis.NewScript(`
local sum = 0
for i = 2, #KEYS do
  sum = sum + tonumber(redis.call('GET', KEYS[i]) or '0')
end
if sum ~= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisCache is a Cache shared by every instance.
//
// Ownership model:
//   - RedisCache does NOT own the *redis.Client. Close is a no-op.
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisCache wraps client; namespace is prepended to every key.
func NewRedisCache(client *redis.Client, namespace string) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("viewcache: nil redis client")
	}
	return &RedisCache{client: client, namespace: namespace}, nil
}

var _ Cache = (*RedisCache)(nil)

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.namespace+key, val, ttl).Err()
}

func (r *RedisCache) Generation(ctx context.Context, key string) (int64, error) {
	vals, err := r.client.MGet(ctx, r.genKeys(key)...).Result()
	if err != nil {
		return 0, fmt.Errorf("viewcache: generation: %w", err)
	}
	var sum int64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("viewcache: generation: %w", err)
		}
		sum += n
	}
	return sum, nil
}

func (r *RedisCache) SetIfCurrent(ctx context.Context, key string, gen int64, val []byte, ttl time.Duration) (bool, error) {
	keys := append([]string{r.namespace + key}, r.genKeys(key)...)
	stored, err := setIfCurrent.Run(ctx, r.client, keys, gen, val, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("viewcache: set: %w", err)
	}
	return stored == 1, nil
}

func (r *RedisCache) genKeys(key string) []string {
	sc := scopes(key)
	out := make([]string, len(sc))
	for i, scope := range sc {
		out[i] = r.genKey(scope)
	}
	return out
}

func (r *RedisCache) genKey(scope string) string {
	return r.namespace + genSegment + scope
}

// Invalidate bumps the prefix counter, then walks matching keys with SCAN and deletes
// them batch by batch. Counters are never deleted.
func (r *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	if err := r.client.Incr(ctx, r.genKey(prefix)).Err(); err != nil {
		return fmt.Errorf("viewcache: bump: %w", err)
	}

	genRoot := r.namespace + genSegment
	iter := r.client.Scan(ctx, 0, escapeGlob(r.namespace+prefix)+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		if strings.HasPrefix(iter.Val(), genRoot) {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("viewcache: del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("viewcache: scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("viewcache: del: %w", err)
		}
	}
	return nil
}

func (r *RedisCache) Close() error { return nil }

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
