package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// Rate limit scopes. Each scope has its own buckets even when limiters share Redis.
const (
	ScopeLogin = "login"
	ScopeAPI   = "api"
)

const rateLimitMessage = "Too many requests"

// RateLimitConfig holds the token bucket parameters of one scope.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are evicted.
	CleanupInterval time.Duration
	// Clock drives refill and eviction. Defaults to the wall clock.
	Clock clock.Clock
}

// APIRateLimitConfig returns the limits for authenticated admin API routes.
func APIRateLimitConfig(cfg config.RateLimitingConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstSize:         cfg.Burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// LoginRateLimitConfig returns the stricter per-IP limits for the login endpoint.
func LoginRateLimitConfig(cfg config.RateLimitingConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: cfg.LoginRequestsPerMinute,
		BurstSize:         cfg.LoginBurst,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether one more request for key fits in its bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is an in-process token bucket limiter. It is exact for a single replica
// and is the fallback when Redis is unavailable.
type RateLimiter struct {
	config   RateLimitConfig
	clock    clock.Clock
	buckets  map[string]*bucket
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter and its eviction loop. Call Stop when done.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  cfg,
		clock:   cfg.Clock,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	ticker := rl.clock.Ticker(cfg.CleanupInterval)
	safego.Go(func() { rl.cleanup(ticker) })
	return rl
}

// idleTTL is how long an untouched bucket survives eviction.
const idleTTL = 10 * time.Minute

func (rl *RateLimiter) cleanup(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.clock.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > idleTTL {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the eviction loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Len returns the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Allow takes one token from key's bucket. It never returns an error.
func (rl *RateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	burst := float64(rl.config.BurstSize)
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	now := rl.clock.Now()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, lastUpdate: now}
		rl.buckets[key] = b
	} else {
		b.tokens = math.Min(burst, b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
		b.lastUpdate = now
	}

	res := RateLimitResult{Limit: rl.config.RequestsPerMinute}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
	} else if perSecond > 0 {
		res.RetryAfter = time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	} else {
		res.RetryAfter = time.Minute
	}
	res.Remaining = int(b.tokens)
	return res, nil
}

// RedisRateLimiter shares buckets between replicas using the GCRA implementation of
// redis_rate. When Redis fails the decision is delegated to fallback, so an outage
// degrades to per-replica limits instead of disabling them.
type RedisRateLimiter struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	prefix   string
	fallback Limiter
}

// NewRedisRateLimiter builds a limiter over client. prefix namespaces the keys.
func NewRedisRateLimiter(client *redis.Client, prefix string, cfg RateLimitConfig, fallback Limiter) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  cfg.BurstSize,
			Period: time.Minute,
		},
		prefix:   prefix,
		fallback: fallback,
	}
}

// Allow consults Redis and falls back to the local limiter on error.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		if rl.fallback == nil {
			return RateLimitResult{}, err
		}
		telemetry.RateLimitFallbacksTotal.Inc()
		slog.Warn("redis rate limiter unavailable, using local limiter", "error", err)
		return rl.fallback.Allow(ctx, key)
	}
	out := RateLimitResult{
		Allowed:   res.Allowed > 0,
		Limit:     rl.limit.Rate,
		Remaining: res.Remaining,
	}
	if !out.Allowed {
		out.RetryAfter = res.RetryAfter
	}
	return out, nil
}

// RateLimitMiddleware enforces limiter for scope. Authenticated requests are keyed by
// admin id, everything else by client IP. A limiter error lets the request through.
func RateLimitMiddleware(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), scope+":"+rateLimitKey(c))
		if err != nil {
			slog.Error("rate limiter failed", "scope", scope, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))

		if !res.Allowed {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			telemetry.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": rateLimitMessage,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated admin over the client address.
func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(AdminIDKey); id != "" {
		return "admin:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
