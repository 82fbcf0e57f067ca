package middlewares

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// ipShare is how many devices' worth of traffic one client IP may send.
	// Guests on the restaurant Wi-Fi share an IP.
	ipShare = 64
	// maxVisitors caps the bucket map; keys beyond it share one bucket.
	maxVisitors = 10000
	sweepEvery  = time.Minute
)

// RateLimiter keeps one token bucket per customer device plus an aggregate
// bucket per client IP, so rotating device tokens cannot lift the IP limit.
type RateLimiter struct {
	limit       rate.Limit
	burst       int
	idleTTL     time.Duration
	maxVisitors int
	mu          sync.Mutex
	visitors    map[string]*visitor
	overflow    *rate.Limiter
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a background sweep of idle buckets that lives as
// long as the process.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limit:       rate.Limit(rps),
		burst:       burst,
		idleTTL:     10 * time.Minute,
		maxVisitors: maxVisitors,
		visitors:    make(map[string]*visitor),
		overflow:    rate.NewLimiter(rate.Limit(rps)*ipShare, burst*ipShare),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for now := range ticker.C {
		rl.sweep(now)
	}
}

// sweep forgets buckets idle for longer than idleTTL.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, k)
		}
	}
}

func (rl *RateLimiter) limiterFor(key string, limit rate.Limit, burst int, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		if len(rl.visitors) >= rl.maxVisitors {
			return rl.overflow
		}
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// deviceKey returns the bucket key for a well-formed device token.
func deviceKey(header string) (string, bool) {
	token := strings.TrimSpace(header)
	if token == "" || len(token) > 64 {
		return "", false
	}
	return "device:" + token, true
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		allowed := true
		if key, ok := deviceKey(c.GetHeader("X-Customer-Token")); ok {
			allowed = rl.limiterFor(key, rl.limit, rl.burst, now).Allow()
		}
		if allowed {
			allowed = rl.limiterFor("ip:"+c.ClientIP(), rl.limit*ipShare, rl.burst*ipShare, now).Allow()
		}

		if !allowed {
			wait := math.Ceil(1 / float64(rl.limit))
			c.Header("Retry-After", strconv.Itoa(int(math.Max(wait, 1))))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "too many requests, please slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
