package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

type fakeWindowCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeWindowCounter() *fakeWindowCounter {
	return &fakeWindowCounter{counts: map[string]int64{}}
}

func (f *fakeWindowCounter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func (f *fakeWindowCounter) scopes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.counts))
	for k := range f.counts {
		out = append(out, k)
	}
	return out
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func reserveRequest(user string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/reserve", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if user != "" {
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: user, Role: "buyer"}))
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitWindowPerUser(t *testing.T) {
	counter := newFakeWindowCounter()
	policy := RateLimitPolicy{Name: "Reserve", Window: time.Minute, UserLimit: 2}
	handler := RateLimit(policy, counter, nil)(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("alice")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("alice")).Code)

	blocked := serve(handler, reserveRequest("alice"))
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)

	assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("bob")).Code, "other users keep their own window")
	assert.ElementsMatch(t, []string{"reserve:user:alice", "reserve:user:bob"}, counter.scopes())
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	counter := newFakeWindowCounter()
	handler := RateLimit(RateLimitPolicy{Window: time.Minute, UserLimit: 1}, counter, nil)(okHandler())

	req := reserveRequest("")
	req.Header.Set("X-Forwarded-For", " 9.9.9.9 , 10.0.0.1")
	assert.Equal(t, http.StatusOK, serve(handler, req).Code)
	assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("")).Code)
	assert.ElementsMatch(t, []string{"default:ip:9.9.9.9", "default:ip:1.2.3.4"}, counter.scopes())
}

func TestRateLimitLocalBucket(t *testing.T) {
	policy := RateLimitPolicy{Name: "reserve", RPS: 0.001, Burst: 1}
	handler := RateLimit(policy, nil, nil)(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("")).Code)
	blocked := serve(handler, reserveRequest(""))
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "1000", blocked.Header().Get("Retry-After"))
}

func TestRateLimitCounterFailure(t *testing.T) {
	counter := newFakeWindowCounter()
	counter.err = errors.New("redis down")
	policy := RateLimitPolicy{Name: "reserve", Window: time.Minute, UserLimit: 5}
	handler := RateLimit(policy, counter, nil)(okHandler())

	assert.Equal(t, http.StatusServiceUnavailable, serve(handler, reserveRequest("alice")).Code)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, nil, nil)(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, reserveRequest("")).Code)
	}
}

func TestClientBucketsEvictIdleCallers(t *testing.T) {
	buckets := newClientBuckets(1, 1)
	start := time.Now()
	require.True(t, buckets.allow("ip:a", start))
	require.True(t, buckets.allow("ip:b", start.Add(bucketIdle+time.Second)))

	buckets.mu.Lock()
	defer buckets.mu.Unlock()
	assert.NotContains(t, buckets.limiters, "ip:a")
	assert.Contains(t, buckets.limiters, "ip:b")
}
