package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache(t *testing.T) {
	t.Run("读写与删除", func(t *testing.T) {
		c := NewLocalCache(16, time.Minute)
		defer c.Close()

		c.Set("a", "value-a")
		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "value-a", val)

		c.Delete("a")
		_, ok = c.Get("a")
		assert.False(t, ok)
	})

	t.Run("过期条目未命中", func(t *testing.T) {
		c := NewLocalCache(16, 10*time.Millisecond)
		defer c.Close()

		c.Set("a", 1)
		time.Sleep(30 * time.Millisecond)

		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("覆盖写入不增加计数", func(t *testing.T) {
		c := NewLocalCache(16, time.Minute)
		defer c.Close()

		c.Set("a", 1)
		c.Set("a", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, val)
	})

	t.Run("超出容量触发淘汰", func(t *testing.T) {
		c := NewLocalCache(8, time.Minute)
		defer c.Close()

		for i := 0; i < 20; i++ {
			c.Set(fmt.Sprintf("key-%d", i), i)
		}

		// 淘汰后仍可正常写入读取
		c.Set("fresh", "ok")
		val, ok := c.Get("fresh")
		assert.True(t, ok)
		assert.Equal(t, "ok", val)
	})
}
