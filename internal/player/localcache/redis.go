package localcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/studyhub/internal/player/progress"
)

const keyPrefix = "player:progress:"

// RedisStore is a progress.LocalStore backed by Redis, for player hosts that
// want resume state to survive process restarts. Entries expire after TTL so
// abandoned courses age out.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{Client: redis.NewClient(opt), TTL: ttl}, nil
}

type redisEntry struct {
	Percent             int       `json:"percent"`
	WatchTimeSeconds    float64   `json:"watch_time_seconds"`
	LastPositionSeconds float64   `json:"last_position_seconds"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
	SyncedAt            time.Time `json:"synced_at"`
}

func (s *RedisStore) Get(ctx context.Context, userID, courseID string, moduleIndex int) (progress.CachedRecord, bool, error) {
	val, err := s.Client.Get(ctx, keyPrefix+Key{userID, courseID, moduleIndex}.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return progress.CachedRecord{}, false, nil
		}
		return progress.CachedRecord{}, false, err
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		// Corrupt entry: treat as missing, it will be rewritten on merge.
		return progress.CachedRecord{}, false, nil
	}
	return progress.CachedRecord{
		Record: progress.ProgressRecord{
			Percent:             e.Percent,
			WatchTimeSeconds:    e.WatchTimeSeconds,
			LastPositionSeconds: e.LastPositionSeconds,
			LastUpdatedAt:       e.LastUpdatedAt,
		},
		SyncedAt: e.SyncedAt,
	}, true, nil
}

func (s *RedisStore) Put(ctx context.Context, userID, courseID string, moduleIndex int, rec progress.CachedRecord) error {
	b, err := json.Marshal(redisEntry{
		Percent:             rec.Record.Percent,
		WatchTimeSeconds:    rec.Record.WatchTimeSeconds,
		LastPositionSeconds: rec.Record.LastPositionSeconds,
		LastUpdatedAt:       rec.Record.LastUpdatedAt,
		SyncedAt:            rec.SyncedAt,
	})
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, keyPrefix+Key{userID, courseID, moduleIndex}.String(), b, s.TTL).Err()
}
