package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker tracks provider:model cooldowns.
type Breaker interface {
	IsOpen(ctx context.Context, provider, model string) bool
	Open(ctx context.Context, provider, model string) time.Duration
	Close(ctx context.Context, provider, model string)
}

// Guard bounds in-flight provider calls and fails fast while a breaker is open.
// It never retries.
type Guard struct {
	breaker     Breaker
	maxInflight int
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

type Options struct {
	MaxInflight int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Redis shares breaker state between backend replicas when set.
	Redis *redis.Client
}

func New(opts Options) *Guard {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	var b Breaker
	if opts.Redis != nil {
		b = &RedisBreaker{rdb: opts.Redis, baseBackoff: opts.BaseBackoff, maxBackoff: opts.MaxBackoff}
	} else {
		b = NewMemoryBreaker(opts.BaseBackoff, opts.MaxBackoff)
	}
	return &Guard{breaker: b, maxInflight: opts.MaxInflight, sem: map[string]chan struct{}{}}
}

func key(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", strings.ToLower(provider), strings.ToLower(model))
}

// IsOpen returns true if the breaker for provider/model is cooling down.
func (g *Guard) IsOpen(ctx context.Context, provider, model string) bool {
	return g.breaker.IsOpen(ctx, provider, model)
}

// Report records the outcome of a call: transient failures open the breaker,
// successes close it.
func (g *Guard) Report(ctx context.Context, provider, model string, transientFailure bool) {
	if transientFailure {
		d := g.breaker.Open(ctx, provider, model)
		log.Warn().Str("provider", provider).Str("model", model).Dur("cooldown", d).Msg("circuit breaker OPENED")
		return
	}
	g.breaker.Close(ctx, provider, model)
}

// Allow tries to reserve a local in-process slot for provider:model.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (g *Guard) Allow(provider, model string) (func(), bool) {
	k := key(provider, model)
	g.mu.Lock()
	ch, ok := g.sem[k]
	if !ok {
		ch = make(chan struct{}, g.maxInflight)
		g.sem[k] = ch
	}
	g.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}

func backoff(base, max time.Duration, failures int64) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := base
	for i := int64(1); i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}

// MemoryBreaker keeps breaker state in process.
type MemoryBreaker struct {
	mu          sync.Mutex
	baseBackoff time.Duration
	maxBackoff  time.Duration
	failures    map[string]int64
	until       map[string]time.Time
	now         func() time.Time
}

func NewMemoryBreaker(base, max time.Duration) *MemoryBreaker {
	return &MemoryBreaker{baseBackoff: base, maxBackoff: max, failures: map[string]int64{}, until: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryBreaker) IsOpen(_ context.Context, provider, model string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.until[key(provider, model)]
	return ok && m.now().Before(u)
}

func (m *MemoryBreaker) Open(_ context.Context, provider, model string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(provider, model)
	m.failures[k]++
	d := backoff(m.baseBackoff, m.maxBackoff, m.failures[k])
	m.until[k] = m.now().Add(d)
	return d
}

func (m *MemoryBreaker) Close(_ context.Context, provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(provider, model)
	delete(m.failures, k)
	delete(m.until, k)
}

// RedisBreaker stores the cooldown deadline and attempt counter in Redis.
type RedisBreaker struct {
	rdb         *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func (r *RedisBreaker) IsOpen(ctx context.Context, provider, model string) bool {
	ts, err := r.rdb.Get(ctx, key(provider, model)).Int64()
	if err != nil {
		return false
	}
	return time.Now().Unix() < ts
}

// Open sets/extends the cooldown with exponential backoff per attempt.
func (r *RedisBreaker) Open(ctx context.Context, provider, model string) time.Duration {
	k := key(provider, model)
	attempts, _ := r.rdb.Incr(ctx, k+":attempts").Result()
	r.rdb.Expire(ctx, k+":attempts", 10*time.Minute)
	d := backoff(r.baseBackoff, r.maxBackoff, attempts)
	until := time.Now().Add(d).Unix()
	_ = r.rdb.Set(ctx, k, until, d).Err()
	return d
}

// Close resets the breaker for provider/model.
func (r *RedisBreaker) Close(ctx context.Context, provider, model string) {
	k := key(provider, model)
	_ = r.rdb.Del(ctx, k, k+":attempts").Err()
}
