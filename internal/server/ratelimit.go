package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cvfolio/cvfolio-portal/internal/handlers"
	"github.com/cvfolio/cvfolio-portal/internal/metrics"
	"github.com/cvfolio/cvfolio-portal/internal/models"
	"github.com/cvfolio/cvfolio-portal/internal/session"
)

// limiterCleanupInterval controls how often idle per-user limiters are
// dropped. Entries idle for twice this interval are removed.
const limiterCleanupInterval = 5 * time.Minute

// userLimiter holds one user's token bucket plus bookkeeping for cleanup
// and tier changes.
type userLimiter struct {
	limiter    *rate.Limiter
	tier       models.Tier
	lastAccess time.Time
}

// TierLimiter enforces per-user request rates based on the subscription
// tier of the active session. Unauthenticated requests pass through; the
// handlers reject them with 401 anyway.
type TierLimiter struct {
	reconciler *session.Reconciler
	jwtSecret  []byte
	metrics    *metrics.Collector

	mu       sync.Mutex
	limiters map[string]*userLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTierLimiter creates a limiter and starts its background cleanup.
func NewTierLimiter(rec *session.Reconciler, jwtSecret string, collector *metrics.Collector) *TierLimiter {
	tl := &TierLimiter{
		reconciler: rec,
		jwtSecret:  []byte(jwtSecret),
		metrics:    collector,
		limiters:   make(map[string]*userLimiter),
		stopCh:     make(chan struct{}),
	}
	go tl.cleanupLoop()
	return tl
}

// Stop terminates the background cleanup goroutine.
func (tl *TierLimiter) Stop() {
	tl.stopOnce.Do(func() { close(tl.stopCh) })
}

// Middleware wraps a handler with tier-based rate limiting.
func (tl *TierLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, claims := handlers.IsLoggedIn(r, tl.jwtSecret)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		tier := models.TierFree
		if state := tl.reconciler.Snapshot(); state != nil && state.Identity.UID == claims.Sub {
			tier = models.ParseTier(string(state.Tier))
		}

		limit, _ := tier.RateLimit()
		if limit == rate.Inf {
			next.ServeHTTP(w, r)
			return
		}

		if !tl.getOrCreate(claims.Sub, tier).Allow() {
			if tl.metrics != nil {
				tl.metrics.RecordRateLimitDrop(string(tier))
			}
			writeRateLimitResponse(w, limit)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getOrCreate returns the user's bucket, rebuilding it when the tier has
// changed since it was created.
func (tl *TierLimiter) getOrCreate(userID string, tier models.Tier) *rate.Limiter {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if ul, exists := tl.limiters[userID]; exists && ul.tier == tier {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limit, burst := tier.RateLimit()
	ul := &userLimiter{
		limiter:    rate.NewLimiter(limit, burst),
		tier:       tier,
		lastAccess: time.Now(),
	}
	tl.limiters[userID] = ul
	return ul.limiter
}

func (tl *TierLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tl.cleanup()
		case <-tl.stopCh:
			return
		}
	}
}

func (tl *TierLimiter) cleanup() {
	ttl := limiterCleanupInterval * 2
	now := time.Now()

	tl.mu.Lock()
	for userID, ul := range tl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(tl.limiters, userID)
		}
	}
	tl.mu.Unlock()
}

// LimiterCount reports how many per-user buckets are live. For tests and
// diagnostics.
func (tl *TierLimiter) LimiterCount() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.limiters)
}

// writeRateLimitResponse writes a 429 with a Retry-After estimate of when
// one token will be available again.
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"status":"error","error":"rate limit exceeded, retry later"}`))
}
