package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
)

// Cache stores successful lookups by key. Implementations must be safe
// for concurrent use; misses and backend failures both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// NewCache builds the configured cache backend. It returns nil for
// backend "none". An unreachable redis falls back to memory.
func NewCache(ctx context.Context, cfg config.Cache, log logrus.FieldLogger) Cache {
	log = logger.OrDiscard(log)
	switch strings.ToLower(cfg.Backend) {
	case "none", "off":
		return nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: config.APIKey(cfg.Redis.PasswordEnv),
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warnf("Redis cache at %s unavailable (%v), using in-memory cache", cfg.Redis.Addr, err)
			client.Close()
			return NewMemoryCache(cfg.TTL)
		}
		log.Infof("Using redis lookup cache at %s", cfg.Redis.Addr)
		return NewRedisCache(client, cfg.TTL, log)
	default:
		return NewMemoryCache(cfg.TTL)
	}
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a memory cache. ttl <= 0 keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.entries[key] = e
}

// RedisCache stores lookups in redis under the "pitchradar:" prefix.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, log logrus.FieldLogger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: logger.OrDiscard(log)}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, "pitchradar:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Debugf("Redis get %s: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := r.client.Set(ctx, "pitchradar:"+key, value, r.ttl).Err(); err != nil {
		r.log.Debugf("Redis set %s: %v", key, err)
	}
}

type cachedNews struct {
	next  NewsSearcher
	cache Cache
}

// WithNewsCache caches successful news lookups. A nil cache returns s.
func WithNewsCache(s NewsSearcher, cache Cache) NewsSearcher {
	if cache == nil {
		return s
	}
	return &cachedNews{next: s, cache: cache}
}

func (c *cachedNews) Search(ctx context.Context, query string, numResults int) NewsResult {
	key := fmt.Sprintf("news:%d:%s", numResults, strings.ToLower(strings.TrimSpace(query)))
	if data, ok := c.cache.Get(ctx, key); ok {
		var items []NewsItem
		if json.Unmarshal(data, &items) == nil {
			return NewsResult{Results: items}
		}
	}

	result := c.next.Search(ctx, query, numResults)
	if result.Error == "" {
		if data, err := json.Marshal(result.Results); err == nil {
			c.cache.Set(ctx, key, data)
		}
	}
	return result
}

type cachedMarket struct {
	next  MarketResearcher
	cache Cache
}

// WithMarketCache caches successful research answers. A nil cache returns r.
func WithMarketCache(r MarketResearcher, cache Cache) MarketResearcher {
	if cache == nil {
		return r
	}
	return &cachedMarket{next: r, cache: cache}
}

func (c *cachedMarket) Search(ctx context.Context, prompt string) MarketResult {
	sum := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	key := "market:" + hex.EncodeToString(sum[:])
	if data, ok := c.cache.Get(ctx, key); ok {
		return MarketResult{Answer: string(data)}
	}

	result := c.next.Search(ctx, prompt)
	if result.Error == "" && result.Answer != "" {
		c.cache.Set(ctx, key, []byte(result.Answer))
	}
	return result
}
