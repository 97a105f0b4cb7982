package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sympfindx-server/internal/domain"
)

// CacheClient wraps a Redis client with caching for classifier responses.
// Classifier models are deterministic for a given input, so responses can be
// cached aggressively; the TTL mainly bounds staleness across model rollouts.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new classifier response cache.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// cachedObservations is the stored cache entry with metadata.
type cachedObservations struct {
	Observations []domain.ClassifierObservation `json:"observations"`
	CachedAt     time.Time                      `json:"cached_at"`
	ExpiresAt    time.Time                      `json:"expires_at"`
}

// Get retrieves cached observations for one classifier input.
// The second return value reports whether the lookup was a hit.
func (c *CacheClient) Get(ctx context.Context, source, input string) ([]domain.ClassifierObservation, bool, error) {
	key := cacheKey(source, input)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get classifier cache: %w", err)
	}

	var cached cachedObservations
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Observations, true, nil
}

// Set caches observations for one classifier input.
func (c *CacheClient) Set(ctx context.Context, source, input string, observations []domain.ClassifierObservation, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedObservations{
		Observations: observations,
		CachedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return c.redis.Set(ctx, cacheKey(source, input), jsonData, ttl).Err()
}

// Close closes the Redis connection.
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// cacheKey builds a stable key from the source and raw input. The input is
// hashed so arbitrary symptom text never leaks into key space.
func cacheKey(source, input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("classifier:%s:%x", source, sum)
}

// CachedImageClassifier wraps an ImageClassifier with read-through caching.
type CachedImageClassifier struct {
	inner ImageClassifier
	cache *CacheClient
}

// NewCachedImageClassifier wraps inner with the cache.
func NewCachedImageClassifier(inner ImageClassifier, cache *CacheClient) *CachedImageClassifier {
	return &CachedImageClassifier{inner: inner, cache: cache}
}

// ClassifyImage serves from the cache when possible. Cache errors degrade to
// a direct classifier call rather than failing the analysis.
func (c *CachedImageClassifier) ClassifyImage(ctx context.Context, imageRef string) ([]domain.ClassifierObservation, error) {
	if cached, hit, err := c.cache.Get(ctx, domain.SourceImage, imageRef); err == nil && hit {
		return cached, nil
	}

	observations, err := c.inner.ClassifyImage(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(ctx, domain.SourceImage, imageRef, observations, 0)
	return observations, nil
}

// CachedSymptomClassifier wraps a SymptomClassifier with read-through caching.
type CachedSymptomClassifier struct {
	inner SymptomClassifier
	cache *CacheClient
}

// NewCachedSymptomClassifier wraps inner with the cache.
func NewCachedSymptomClassifier(inner SymptomClassifier, cache *CacheClient) *CachedSymptomClassifier {
	return &CachedSymptomClassifier{inner: inner, cache: cache}
}

// ClassifySymptoms serves from the cache when possible. Cache errors degrade
// to a direct classifier call rather than failing the analysis.
func (c *CachedSymptomClassifier) ClassifySymptoms(ctx context.Context, symptomText string) ([]domain.ClassifierObservation, error) {
	if cached, hit, err := c.cache.Get(ctx, domain.SourceText, symptomText); err == nil && hit {
		return cached, nil
	}

	observations, err := c.inner.ClassifySymptoms(ctx, symptomText)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(ctx, domain.SourceText, symptomText, observations, 0)
	return observations, nil
}
