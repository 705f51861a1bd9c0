package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool(t *testing.T) {
	t.Run("任务全部执行", func(t *testing.T) {
		p := NewWorkerPool(3, 16, nil)
		p.Start(context.Background())

		var count atomic.Int64
		for i := 0; i < 10; i++ {
			p.Submit(func() { count.Add(1) })
		}
		p.Stop()

		assert.Equal(t, int64(10), count.Load())
	})

	t.Run("panic不影响后续任务", func(t *testing.T) {
		p := NewWorkerPool(1, 4, nil)
		p.Start(context.Background())

		var done atomic.Bool
		p.Submit(func() { panic("boom") })
		p.Submit(func() { done.Store(true) })
		p.Stop()

		assert.True(t, done.Load())
	})

	t.Run("队列满时TrySubmit返回false", func(t *testing.T) {
		p := NewWorkerPool(1, 1, nil)
		// 不启动 worker，队列只能容纳一个任务

		assert.True(t, p.TrySubmit(func() {}))
		assert.False(t, p.TrySubmit(func() {}))
	})

	t.Run("取消上下文后退出", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewWorkerPool(2, 4, nil)
		p.Start(ctx)

		cancel()

		stopped := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("workers did not exit after context cancel")
		}
	})
}
