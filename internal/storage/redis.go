package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pricewatch/internal/tracking"
)

// DefaultRedisKey is the single key holding the JSON collection.
const DefaultRedisKey = "products"

const redisLockTTL = 30 * time.Minute

// releaseLockScript deletes the lock only if this holder still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore keeps the collection as one JSON value, written with a single SET.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger zerolog.Logger
}

// NewRedisStore keeps the whole collection as one JSON value under key.
func NewRedisStore(client redis.UniversalClient, key string, logger zerolog.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: client,
		key:    key,
		logger: logger.With().Str("component", "store_redis").Logger(),
	}
}

// Load treats a missing key as an empty collection.
func (s *RedisStore) Load(ctx context.Context) ([]tracking.Item, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConfigured
	}
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []tracking.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	return decodeItems(data)
}

func (s *RedisStore) Save(ctx context.Context, items []tracking.Item) error {
	if s == nil || s.client == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(nonNil(items))
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// TryAdvisoryLock takes a SET NX lock so only one tracker runs a pass at a time.
// The TTL bounds how long a crashed holder can block others.
func (s *RedisStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.client == nil {
		return nil, false, ErrNotConfigured
	}
	lockKey := s.key + ":lock:" + strconv.FormatInt(key, 10)
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("lock token: %w", err)
	}
	token := hex.EncodeToString(buf)

	acquired, err := s.client.SetNX(ctx, lockKey, token, redisLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("try redis lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(ctxUnlock, s.client, []string{lockKey}, token).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", lockKey).Msg("release lock failed")
		}
	}
	return unlock, true, nil
}

var (
	_ Store          = (*RedisStore)(nil)
	_ AdvisoryLocker = (*RedisStore)(nil)
)
