package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnLimiter 按客户端 IP 限制 SMTP 连接
//
// 两层限制：单 IP 并发连接数上限，以及单 IP 每秒新建
// 连接的速率（令牌桶，容量等于速率）。
type ConnLimiter struct {
	mu       sync.Mutex
	perIP    map[string]*ipState
	maxConns int
	ratePerS int
}

type ipState struct {
	limiter *rate.Limiter
	conns   int
}

// NewConnLimiter 创建连接限制器
//
// maxConns 或 ratePerS 为非正值时对应限制不生效。
func NewConnLimiter(maxConns, ratePerS int) *ConnLimiter {
	return &ConnLimiter{
		perIP:    make(map[string]*ipState),
		maxConns: maxConns,
		ratePerS: ratePerS,
	}
}

// Acquire 尝试为该 IP 获取一个连接名额
func (l *ConnLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.perIP[ip]
	if !ok {
		limit := rate.Inf
		burst := 1
		if l.ratePerS > 0 {
			limit = rate.Limit(l.ratePerS)
			burst = l.ratePerS
		}
		state = &ipState{limiter: rate.NewLimiter(limit, burst)}
		l.perIP[ip] = state
	}

	if l.maxConns > 0 && state.conns >= l.maxConns {
		return false
	}
	if !state.limiter.Allow() {
		return false
	}

	state.conns++
	return true
}

// Release 释放该 IP 的一个连接名额
func (l *ConnLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.perIP[ip]
	if !ok {
		return
	}
	if state.conns > 0 {
		state.conns--
	}
	// 无活跃连接且令牌已满时回收，防止表无限增长
	if state.conns == 0 && state.limiter.Tokens() >= float64(state.limiter.Burst()) {
		delete(l.perIP, ip)
	}
}

// Active 返回该 IP 当前的活跃连接数
func (l *ConnLimiter) Active(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.perIP[ip]; ok {
		return state.conns
	}
	return 0
}
