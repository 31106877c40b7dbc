package settings

import (
	"context"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache sits between the store and its database so dispatch does not
// decode the settings document for every inbound fact. A (nil, nil) Get is a
// miss. Cached snapshots are shared; callers must treat them as read-only.
type SnapshotCache interface {
	Get(ctx context.Context, guildID string) (*Snapshot, error)
	Set(ctx context.Context, guildID string, snap *Snapshot) error
	Purge(ctx context.Context, guildID string) error
}

// MemSnapshotCache is a process-local SnapshotCache on an expiring LRU.
type MemSnapshotCache struct {
	data *expirable.LRU[string, *Snapshot]
}

var _ SnapshotCache = (*MemSnapshotCache)(nil)

func NewMemSnapshotCache(capacity int, ttl time.Duration) *MemSnapshotCache {
	return &MemSnapshotCache{
		data: expirable.NewLRU[string, *Snapshot](capacity, nil, ttl),
	}
}

func (c *MemSnapshotCache) Get(ctx context.Context, guildID string) (*Snapshot, error) {
	snap, ok := c.data.Get(guildID)
	if !ok {
		return nil, nil
	}
	return snap, nil
}

func (c *MemSnapshotCache) Set(ctx context.Context, guildID string, snap *Snapshot) error {
	c.data.Add(guildID, snap)
	return nil
}

func (c *MemSnapshotCache) Purge(ctx context.Context, guildID string) error {
	c.data.Remove(guildID)
	return nil
}

// RedisSnapshotCache is a SnapshotCache on redis with a TinyLFU local tier,
// so purges propagate across processes. Snapshots are marshaled inside.
type RedisSnapshotCache struct {
	data *cache.Cache
	ttl  time.Duration
}

var _ SnapshotCache = (*RedisSnapshotCache)(nil)

func NewRedisSnapshotCache(redisURL string, ttl time.Duration) (*RedisSnapshotCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, ttl),
	})
	return &RedisSnapshotCache{
		data: data,
		ttl:  ttl,
	}, nil
}

func snapshotCacheKey(guildID string) string {
	return "guild-settings/" + guildID
}

func (c *RedisSnapshotCache) Get(ctx context.Context, guildID string) (*Snapshot, error) {
	var snap Snapshot
	err := c.data.Get(ctx, snapshotCacheKey(guildID), &snap)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.GuildID = guildID
	return &snap, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, guildID string, snap *Snapshot) error {
	return c.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   snapshotCacheKey(guildID),
		Value: snap,
		TTL:   c.ttl,
	})
}

func (c *RedisSnapshotCache) Purge(ctx context.Context, guildID string) error {
	err := c.data.Delete(ctx, snapshotCacheKey(guildID))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}
