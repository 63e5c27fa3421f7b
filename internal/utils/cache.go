package utils

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/patrickmn/go-cache"
)

// PageCache 带过期时间的键值缓存，用于已发布课程分页
type PageCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewPageCache 创建缓存，ttl 为默认过期时间
func NewPageCache(ttl time.Duration) *PageCache {
	return &PageCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Get 获取缓存值
func (c *PageCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Set 设置缓存值
func (c *PageCache) Set(key string, value interface{}) {
	c.store.Set(key, value, c.ttl)
}

// DeletePrefix 删除指定前缀的缓存
func (c *PageCache) DeletePrefix(prefix string) {
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Clear 清空缓存
func (c *PageCache) Clear() {
	c.store.Flush()
}

// CacheItem 包装实际的数据，增加过期时间
type CacheItem[T any] struct {
	Value     T
	ExpiredAt time.Time
}

// SearchCache 搜索结果缓存，LRU 淘汰并带过期时间
type SearchCache[T any] struct {
	storage *lru.Cache[string, CacheItem[T]]
	ttl     time.Duration
}

// NewSearchCache size 为最大条数，ttl 为有效期
func NewSearchCache[T any](size int, ttl time.Duration) *SearchCache[T] {
	c, _ := lru.New[string, CacheItem[T]](size)
	return &SearchCache[T]{
		storage: c,
		ttl:     ttl,
	}
}

// Set 写入或覆盖
func (c *SearchCache[T]) Set(key string, value T) {
	c.storage.Add(key, CacheItem[T]{
		Value:     value,
		ExpiredAt: time.Now().Add(c.ttl),
	})
}

// Get 读取，过期的条目会被移除
func (c *SearchCache[T]) Get(key string) (T, bool) {
	var zero T
	item, ok := c.storage.Get(key)
	if !ok {
		return zero, false
	}
	if time.Now().After(item.ExpiredAt) {
		c.storage.Remove(key)
		return zero, false
	}
	return item.Value, true
}

// Clear 清空
func (c *SearchCache[T]) Clear() {
	c.storage.Purge()
}

// Len 当前条数
func (c *SearchCache[T]) Len() int {
	return c.storage.Len()
}
