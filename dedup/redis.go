package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/platewise/platewise/types"
)

// DefaultRetention is the default record retention window. It must
// exceed the maximum end-to-end processing time plus the queue's total
// retry window so a record never expires while its job is still
// legitimately retrying.
const DefaultRetention = 24 * time.Hour

// DefaultGrace is the default staleness threshold for in_progress
// claims. Chosen conservatively: longer than the slowest observed
// external call chain (image download, two model calls, three tier
// lookups, sheet append).
const DefaultGrace = 15 * time.Minute

const (
	keyPrefix     = "platewise:job:"
	summaryPrefix = "platewise:summary:"

	inProgressTag = "in_progress"
	completedTag  = "completed"
)

// claimScript performs the atomic claim-if-absent-or-expired-or-stale
// write. Expired keys are already gone (Redis TTL), so absence covers
// expiry. Values are either "completed" or "in_progress:<unix_ms>".
//
// KEYS[1] record key
// ARGV[1] now (unix ms), ARGV[2] retention (ms), ARGV[3] grace (ms)
var claimScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  redis.call('SET', KEYS[1], 'in_progress:' .. ARGV[1], 'PX', ARGV[2])
  return 'claimed'
end
if v == 'completed' then
  return 'completed'
end
local ts = tonumber(string.sub(v, 13))
if ts and (tonumber(ARGV[1]) - ts) >= tonumber(ARGV[3]) then
  redis.call('SET', KEYS[1], 'in_progress:' .. ARGV[1], 'PX', ARGV[2])
  return 'claimed'
end
return 'in_progress'
`)

// releaseScript deletes the record only while it is in progress, so a
// misplaced release can never erase a committed record.
var releaseScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, 11) == 'in_progress' then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Config configures the Redis-backed guard.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Retention is the record expiry window (default 24h).
	Retention time.Duration
	// Grace is the in_progress staleness threshold (default 15m).
	Grace time.Duration
}

// RedisGuard is the Redis implementation of Guard.
type RedisGuard struct {
	config Config
	client *goredis.Client

	// now is injectable for tests.
	now func() time.Time
}

// NewRedisGuard creates a guard from the given config.
// Returns an error if the URL is empty or invalid.
func NewRedisGuard(cfg Config) (*RedisGuard, error) {
	if cfg.URL == "" {
		return nil, errors.New("dedup guard requires a redis URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dedup guard: invalid URL: %w", err)
	}

	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Grace >= cfg.Retention {
		return nil, fmt.Errorf("grace %v must be shorter than retention %v", cfg.Grace, cfg.Retention)
	}

	return &RedisGuard{
		config: cfg,
		client: goredis.NewClient(opts),
		now:    time.Now,
	}, nil
}

// Claim implements Guard.
func (g *RedisGuard) Claim(ctx context.Context, key string) (Claim, error) {
	nowMS := g.now().UnixMilli()
	res, err := claimScript.Run(ctx, g.client,
		[]string{keyPrefix + key},
		nowMS, g.config.Retention.Milliseconds(), g.config.Grace.Milliseconds(),
	).Text()
	if err != nil {
		return Claim{}, types.NewStageError(types.ErrStore, "claim", err)
	}

	switch ClaimResult(res) {
	case Claimed:
		return Claim{Result: Claimed}, nil
	case AlreadyInProgress:
		return Claim{Result: AlreadyInProgress}, nil
	case AlreadyCompleted:
		return Claim{Result: AlreadyCompleted, Summary: g.cachedSummary(ctx, key)}, nil
	default:
		return Claim{}, types.NewStageError(types.ErrStore, "claim",
			fmt.Errorf("unexpected claim result %q", res))
	}
}

// Commit implements Guard. The summary cache is written in the same
// transaction as the state flip so a replay never observes completed
// without the cache at least having been attempted.
func (g *RedisGuard) Commit(ctx context.Context, key string, summary *types.MealSummary) error {
	retention := g.config.Retention

	_, err := g.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+key, completedTag, retention)
		if summary != nil {
			if body, mErr := msgpack.Marshal(summary); mErr == nil {
				pipe.Set(ctx, summaryPrefix+key, body, retention)
			}
		}
		return nil
	})
	if err != nil {
		return types.NewStageError(types.ErrStore, "commit", err)
	}
	return nil
}

// Release implements Guard.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, g.client, []string{keyPrefix + key}).Err(); err != nil {
		return types.NewStageError(types.ErrStore, "release", err)
	}
	return nil
}

// cachedSummary fetches the committed attempt's summary. Best effort:
// a missing or undecodable cache entry is not an error.
func (g *RedisGuard) cachedSummary(ctx context.Context, key string) *types.MealSummary {
	body, err := g.client.Get(ctx, summaryPrefix+key).Bytes()
	if err != nil {
		return nil
	}
	var summary types.MealSummary
	if err := msgpack.Unmarshal(body, &summary); err != nil {
		return nil
	}
	return &summary
}

// Close releases the underlying Redis client.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// Verify RedisGuard implements the Guard interface.
var _ Guard = (*RedisGuard)(nil)
