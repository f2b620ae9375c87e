package cache

import (
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// Keys used by the collectors and the worker
const (
	rateLimitPrefix = "ratelimit:"
	publishedPrefix = "published:"
)

// RateLimitKey is set while requests to host are blocked
func RateLimitKey(host string) string {
	return rateLimitPrefix + host
}

// PublishedKey marks a notice number as already published
func PublishedKey(noticeNo string) string {
	return publishedPrefix + noticeNo
}

// New returns a memcache-backed service when addr is set and the bounded
// in-process cache otherwise
func New(addr string, maxEntries int) CacheService {
	if addr != "" {
		return NewMemcacheService(addr)
	}
	return NewMemoryCache(maxEntries)
}
