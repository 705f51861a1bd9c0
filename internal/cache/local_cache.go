package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// SMTP 网关用它缓存收件人目录查询结果，大批量投递时
// 同一地址的 RCPT 查询不必每次落到数据库。
// 条目按 TTL 过期，超出容量时随机淘汰一批旧条目。
type LocalCache struct {
	data    sync.Map
	size    int
	maxSize int
	mu      sync.Mutex // 保护 size 与淘汰
	ttl     time.Duration
	done    chan struct{}
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	c := &LocalCache{
		maxSize: maxSize,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get 获取缓存值，过期条目视为未命中并顺带删除
func (c *LocalCache) Get(key string) (interface{}, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return entry.value, true
}

// Set 写入缓存值
func (c *LocalCache) Set(key string, value interface{}) {
	c.mu.Lock()
	if c.size >= c.maxSize {
		c.evictLocked(c.maxSize / 4)
	}
	if _, loaded := c.data.Load(key); !loaded {
		c.size++
	}
	c.mu.Unlock()

	c.data.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete 删除缓存条目
func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size--
	}
	c.mu.Unlock()
}

// Close 停止后台清理协程
func (c *LocalCache) Close() {
	close(c.done)
}

// evictLocked 淘汰至多 n 个条目。sync.Map 的遍历顺序不确定，
// 整体效果近似随机淘汰。调用方需持有 mu。
func (c *LocalCache) evictLocked(n int) {
	if n <= 0 {
		n = 1
	}
	removed := 0
	c.data.Range(func(key, val interface{}) bool {
		c.data.Delete(key)
		c.size--
		removed++
		return removed < n
	})
}

func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, val interface{}) bool {
				entry := val.(*cacheEntry)
				if now.After(entry.expiresAt) {
					c.Delete(key.(string))
				}
				return true
			})
		}
	}
}
