package cache

import (
	"context"
	"sync"
	"time"

	"aiboost/internal/core"
	"aiboost/internal/util"
)

// LRUCache is a thread-safe LRU cache with expiration
type LRUCache struct {
	capacity int
	items    map[string]*CacheItem
	mu       sync.RWMutex
	head     *CacheItem
	tail     *CacheItem
	ctx      context.Context
	cancel   context.CancelFunc
}

// CacheItem represents an item in the cache with LRU links
type CacheItem struct {
	Value      any
	Expiration int64
	key        string
	prev       *CacheItem
	next       *CacheItem
}

// NewCache creates a new LRU Cache
func NewCache() *LRUCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &LRUCache{
		capacity: core.CacheDefaultCapacity,
		items:    make(map[string]*CacheItem),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.head = &CacheItem{}
	c.tail = &CacheItem{}
	c.head.next = c.tail
	c.tail.prev = c.head

	go c.startCleanupWorker()
	return c
}

func (c *LRUCache) startCleanupWorker() {
	ticker := time.NewTicker(core.CacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop terminates the cache cleanup worker goroutine.
func (c *LRUCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Set stores a value in the cache with the given TTL.
func (c *LRUCache) Set(key string, value any, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.Value = value
		item.Expiration = time.Now().Add(duration).UnixNano()
		c.moveToFront(item)
		return
	}

	item := &CacheItem{
		Value:      value,
		Expiration: time.Now().Add(duration).UnixNano(),
		key:        key,
	}

	c.addToFront(item)
	c.items[key] = item

	if len(c.items) > c.capacity {
		c.evict()
	}
}

// Get retrieves a value from the cache, returning false if not found or expired.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}

	if time.Now().UnixNano() > item.Expiration {
		c.remove(item)
		delete(c.items, key)
		return nil, false
	}

	c.moveToFront(item)
	return item.Value, true
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found {
		c.remove(item)
		delete(c.items, key)
	}
}

func (c *LRUCache) addToFront(item *CacheItem) {
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
}

func (c *LRUCache) moveToFront(item *CacheItem) {
	c.remove(item)
	c.addToFront(item)
}

func (c *LRUCache) remove(item *CacheItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
}

func (c *LRUCache) evict() {
	if c.tail.prev == c.head {
		return
	}
	item := c.tail.prev
	c.remove(item)
	delete(c.items, item.key)
}

func (c *LRUCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, item := range c.items {
		if now > item.Expiration {
			c.remove(item)
			delete(c.items, key)
		}
	}
}

// Clear clears all cache items
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[string]*CacheItem)
}

// CacheService unified cache service
type CacheService struct {
	general  *LRUCache
	sessions *LRUCache
}

// NewCacheService creates a CacheService with general and session caches.
// The session cache is kept separate so that a burst of routing or assistant
// lookups can never evict live login sessions.
func NewCacheService() *CacheService {
	return &CacheService{
		general:  NewCache(),
		sessions: NewCache(),
	}
}

// GetSession retrieves a cached user for a session token.
func (cs *CacheService) GetSession(token string) (*core.User, bool) {
	cached, found := cs.sessions.Get(SessionCacheKey(token))
	if !found {
		return nil, false
	}

	user, ok := cached.(*core.User)
	if !ok {
		return nil, false
	}

	clone := *user
	return &clone, true
}

// SetSession caches the user resolved for a session token.
func (cs *CacheService) SetSession(token string, user *core.User, duration time.Duration) {
	clone := *user
	cs.sessions.Set(SessionCacheKey(token), &clone, duration)
}

// DeleteSession drops a session token from the cache.
func (cs *CacheService) DeleteSession(token string) {
	cs.sessions.Delete(SessionCacheKey(token))
}

// Get retrieves a value from the general cache.
func (cs *CacheService) Get(key string) (any, bool) {
	return cs.general.Get(key)
}

// Set stores a value in the general cache.
func (cs *CacheService) Set(key string, value any, duration time.Duration) {
	cs.general.Set(key, value, duration)
}

// Stop terminates both cache cleanup workers.
func (cs *CacheService) Stop() {
	cs.general.Stop()
	cs.sessions.Stop()
}

// Close stops the cache service and releases resources.
func (cs *CacheService) Close() error {
	cs.Stop()
	return nil
}

// SessionCacheKey creates a cache key for a session token. Tokens are hashed
// so raw credentials never sit in cache keys.
func SessionCacheKey(token string) string {
	return "sess:" + core.CacheKeyVersion + ":" + util.Sha1Hex(token)
}

// RoutingCacheKey creates a cache key for a routing decision.
func RoutingCacheKey(message, preference string) string {
	return "route:" + core.CacheKeyVersion + ":" + util.Sha1Hex(preference+"\x00"+message)
}

// AssistantCacheKey creates a cache key for the assistant ID belonging to an
// API key fingerprint.
func AssistantCacheKey(fingerprint string) string {
	return "asst:" + core.CacheKeyVersion + ":" + fingerprint
}

// TruncateCacheKey safely truncates cache key for log display
func TruncateCacheKey(key string, maxLen int) string {
	if len(key) <= maxLen {
		return key
	}
	return key[:maxLen]
}
