package cache

import (
	"sync"
	"testing"
	"time"

	"aiboost/internal/core"
)

func TestLRUCache_BasicSetGet(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	value, found := cache.Get("key1")
	if !found {
		t.Error("Expected to find key1")
	}
	if value != "value1" {
		t.Errorf("Expected 'value1', got '%v'", value)
	}
}

func TestLRUCache_GetNonExistent(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	_, found := cache.Get("nonexistent")
	if found {
		t.Error("Should not find nonexistent key")
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value", 100*time.Millisecond)
	_, found := cache.Get("key")
	if !found {
		t.Error("Key should be found immediately after set")
	}
	time.Sleep(150 * time.Millisecond)
	_, found = cache.Get("key")
	if found {
		t.Error("Key should be expired")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.mu.Lock()
	cache.capacity = 2
	cache.mu.Unlock()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Set("key3", "value3", 1*time.Hour)
	_, found := cache.Get("key1")
	if found {
		t.Error("key1 should be evicted")
	}
	_, found = cache.Get("key2")
	if !found {
		t.Error("key2 should exist")
	}
	_, found = cache.Get("key3")
	if !found {
		t.Error("key3 should exist")
	}
}

func TestLRUCache_LRUOrder(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.mu.Lock()
	cache.capacity = 2
	cache.mu.Unlock()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Get("key1")
	cache.Set("key3", "value3", 1*time.Hour)
	_, found := cache.Get("key2")
	if found {
		t.Error("key2 should be evicted (least recently used)")
	}
	_, found = cache.Get("key1")
	if !found {
		t.Error("key1 should exist")
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	const numGoroutines = 100
	const numOperations = 100
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := string(rune('a' + (id+j)%26))
				cache.Set(key, id*numOperations+j, 1*time.Hour)
			}
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := string(rune('a' + (id+j)%26))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value1", 1*time.Hour)
	v, _ := cache.Get("key")
	if v != "value1" {
		t.Errorf("Expected 'value1'")
	}
	cache.Set("key", "value2", 1*time.Hour)
	v, _ = cache.Get("key")
	if v != "value2" {
		t.Errorf("Expected 'value2'")
	}
}

func TestLRUCache_ExpiredItemCleanup(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 50*time.Millisecond)
	cache.Set("key2", "value2", 1*time.Hour)
	time.Sleep(100 * time.Millisecond)
	_, found := cache.Get("key1")
	if found {
		t.Error("key1 should be expired")
	}
	_, found = cache.Get("key2")
	if !found {
		t.Error("key2 should still exist")
	}
	cache.mu.Lock()
	_, exists := cache.items["key1"]
	cache.mu.Unlock()
	if exists {
		t.Error("key1 should be removed")
	}
}

func TestLRUCache_ZeroTTL(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value", 0)
	_, found := cache.Get("key")
	if found {
		t.Error("Key with zero TTL should be immediately expired")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value", 1*time.Hour)
	cache.Delete("key")
	_, found := cache.Get("key")
	if found {
		t.Error("Deleted key should not be found")
	}
	cache.Delete("never-existed")
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Clear()
	_, found := cache.Get("key1")
	if found {
		t.Error("key1 should be cleared")
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("short", "value", 50*time.Millisecond)
	cache.Set("long", "value", 1*time.Hour)
	time.Sleep(100 * time.Millisecond)
	cache.cleanupExpired()
	_, found := cache.Get("short")
	if found {
		t.Error("short should have been cleaned up")
	}
	_, found = cache.Get("long")
	if !found {
		t.Error("long should still exist")
	}
}

func TestLRUCache_Evict_EmptyCache(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.mu.Lock()
	cache.evict()
	cache.mu.Unlock()
}

func TestLRUCache_TypeSafety(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("string", "value", 1*time.Hour)
	cache.Set("int", 42, 1*time.Hour)
	cache.Set("struct", struct{ Name string }{"test"}, 1*time.Hour)
	strVal, _ := cache.Get("string")
	if _, ok := strVal.(string); !ok {
		t.Error("Expected string type")
	}
	intVal, _ := cache.Get("int")
	if _, ok := intVal.(int); !ok {
		t.Error("Expected int type")
	}
}

func TestNewCacheService(t *testing.T) {
	service := NewCacheService()
	if service == nil {
		t.Fatal("NewCacheService should not return nil")
	}
	defer func() { _ = service.Close() }()
	if service.general == nil {
		t.Error("general cache should be initialized")
	}
	if service.sessions == nil {
		t.Error("session cache should be initialized")
	}
}

func TestCacheService_SessionRoundTrip(t *testing.T) {
	service := NewCacheService()
	defer func() { _ = service.Close() }()
	user := &core.User{ID: "user-1", Username: "alice"}
	service.SetSession("token-abc", user, 1*time.Hour)
	got, found := service.GetSession("token-abc")
	if !found {
		t.Fatal("Expected to find cached session")
	}
	if got.ID != "user-1" || got.Username != "alice" {
		t.Errorf("Unexpected cached user: %+v", got)
	}
	service.DeleteSession("token-abc")
	_, found = service.GetSession("token-abc")
	if found {
		t.Error("Session should be gone after delete")
	}
}

func TestCacheService_SessionCopyIsolation(t *testing.T) {
	service := NewCacheService()
	defer func() { _ = service.Close() }()
	user := &core.User{ID: "user-1", Username: "alice"}
	service.SetSession("token-abc", user, 1*time.Hour)

	first, _ := service.GetSession("token-abc")
	first.Username = "mutated"

	second, found := service.GetSession("token-abc")
	if !found {
		t.Fatal("Expected to find cached session")
	}
	if second.Username == "mutated" {
		t.Error("Cached user must not be mutated through a returned copy")
	}
}

func TestCacheService_SessionRejectsWrongType(t *testing.T) {
	service := NewCacheService()
	defer func() { _ = service.Close() }()
	service.sessions.Set(SessionCacheKey("token-abc"), "not a user", 1*time.Hour)
	_, found := service.GetSession("token-abc")
	if found {
		t.Error("GetSession should reject non-user cache entries")
	}
}

func TestCacheService_GetSet(t *testing.T) {
	service := NewCacheService()
	defer func() { _ = service.Close() }()
	service.Set("test-key", "test-value", 1*time.Hour)
	value, found := service.Get("test-key")
	if !found {
		t.Error("Expected to find cached value")
	}
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%v'", value)
	}
}

func TestCacheService_Close(t *testing.T) {
	service := NewCacheService()
	service.Set("key1", "value1", 1*time.Hour)
	if err := service.Close(); err != nil {
		t.Errorf("Close should not fail: %v", err)
	}
}

func TestSessionCacheKey(t *testing.T) {
	key1 := SessionCacheKey("token-a")
	key2 := SessionCacheKey("token-a")
	key3 := SessionCacheKey("token-b")
	if key1 != key2 {
		t.Error("Same token should produce the same key")
	}
	if key1 == key3 {
		t.Error("Different tokens should produce different keys")
	}
	if key1 == "sess:"+core.CacheKeyVersion+":token-a" {
		t.Error("Raw token must not appear in the cache key")
	}
}

func TestRoutingCacheKey(t *testing.T) {
	key1 := RoutingCacheKey("what is 2+2", "")
	key2 := RoutingCacheKey("what is 2+2", "")
	key3 := RoutingCacheKey("what is 2+2", "gpt-4o")
	key4 := RoutingCacheKey("different question", "")
	if key1 != key2 {
		t.Error("Same message and preference should produce the same key")
	}
	if key1 == key3 {
		t.Error("Model preference must be part of the key")
	}
	if key1 == key4 {
		t.Error("Different messages should produce different keys")
	}
}

func TestAssistantCacheKey(t *testing.T) {
	key := AssistantCacheKey("fingerprint-1")
	if key == "" {
		t.Error("Key should not be empty")
	}
	if key == AssistantCacheKey("fingerprint-2") {
		t.Error("Different fingerprints should produce different keys")
	}
}

func TestTruncateCacheKey(t *testing.T) {
	tests := []struct {
		name, key, expected string
		maxLen              int
	}{
		{"shorter than limit", "short", "short", 10},
		{"over the limit", "this_is_a_very_long_cache_key", "this_is_a_", 10},
		{"empty string", "", "", 10},
		{"zero maxLen", "any", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateCacheKey(tt.key, tt.maxLen)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}
