package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one traffic surface. Local buckets absorb bursts on
// a single replica; the shared window caps each caller across replicas.
type RateLimitPolicy struct {
	Name      string
	RPS       float64
	Burst     int
	Window    time.Duration
	UserLimit int
}

func (p RateLimitPolicy) name() string {
	if n := strings.ToLower(strings.TrimSpace(p.Name)); n != "" {
		return n
	}
	return "default"
}

func (p RateLimitPolicy) localEnabled() bool {
	return p.RPS > 0 && p.Burst > 0
}

func (p RateLimitPolicy) windowEnabled() bool {
	return p.Window > 0 && p.UserLimit > 0
}

type clientBuckets struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdle = 10 * time.Minute

func newClientBuckets(rps float64, burst int) *clientBuckets {
	return &clientBuckets{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*bucket),
	}
}

func (c *clientBuckets) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.limiters[key]
	if !ok {
		c.evictIdle(now)
		b = &bucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evictIdle drops buckets that have refilled completely; callers hold mu.
func (c *clientBuckets) evictIdle(now time.Time) {
	for key, b := range c.limiters {
		if now.Sub(b.lastSeen) > bucketIdle {
			delete(c.limiters, key)
		}
	}
}

// RateLimit applies the policy per caller: the authenticated user when present,
// otherwise the client IP.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	var buckets *clientBuckets
	if policy.localEnabled() {
		buckets = newClientBuckets(policy.RPS, policy.Burst)
	}
	return func(next http.Handler) http.Handler {
		if buckets == nil && (counter == nil || !policy.windowEnabled()) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := callerKey(r)

			if buckets != nil && !buckets.allow(caller, time.Now()) {
				respondRateLimited(ctx, logg, w, policy, "local", caller, 0)
				return
			}

			if counter != nil && policy.windowEnabled() {
				allowed, count, err := counter.FixedWindowAllow(ctx, policy.name()+":"+caller, int64(policy.UserLimit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, "window", caller, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, scope, caller string, count int64) {
	if logg != nil {
		fields := map[string]any{
			"scope":  scope,
			"policy": policy.name(),
			"caller": caller,
		}
		if count > 0 {
			fields["attempts"] = count
			fields["limit"] = policy.UserLimit
			fields["window_seconds"] = int(policy.Window.Seconds())
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(policy, scope)))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// retryAfterSeconds is an upper bound: a full window, or one token refill.
func retryAfterSeconds(policy RateLimitPolicy, scope string) int {
	wait := policy.Window
	if scope == "local" && policy.RPS > 0 {
		wait = time.Duration(float64(time.Second) / policy.RPS)
	}
	return max(1, int(math.Ceil(wait.Seconds())))
}

func callerKey(r *http.Request) string {
	if user := UserIDFromContext(r.Context()); user != "" {
		return "user:" + user
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
