package throttle

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheCache shares host cool-downs between tracker instances.
type MemcacheCache struct {
	client *memcache.Client
}

// NewMemcacheCache connects lazily; use Ping to check reachability.
func NewMemcacheCache(addrs ...string) *MemcacheCache {
	return &MemcacheCache{client: memcache.New(addrs...)}
}

func (m *MemcacheCache) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set rounds expiration up to a whole second; memcache treats 0 as "never".
func (m *MemcacheCache) Set(key string, value []byte, expiration time.Duration) error {
	secs := int32((expiration + time.Second - 1) / time.Second)
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: secs,
	})
}

func (m *MemcacheCache) Delete(key string) error {
	err := m.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Ping checks the server is reachable.
func (m *MemcacheCache) Ping() error {
	return m.client.Ping()
}

var _ Cache = (*MemcacheCache)(nil)
