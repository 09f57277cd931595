package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles credential endpoints with a sliding window per
// client IP and submitted email, backed by Redis sorted sets.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return 1
	end
	return 0
`)

// limitKey scopes the window to client IP plus the submitted email so
// one NAT egress cannot lock out unrelated accounts. The body is
// restored for the handler behind us.
func limitKey(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	var email string
	if r.Body != nil {
		if body, err := io.ReadAll(r.Body); err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			var req struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(body, &req) == nil {
				email = strings.ToLower(req.Email)
			}
		}
	}

	return "ratelimit:login:" + ip + ":" + email
}

// Allow reports whether another request fits in the caller's window.
// Redis failures allow the request through, the limiter must never
// take the login path down with it.
func (l *RateLimiter) allow(r *http.Request) bool {
	now := time.Now()
	allowed, err := slidingWindowScript.Run(r.Context(), l.client,
		[]string{limitKey(r)},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		log.Printf("ERROR [middleware.RateLimiter] redis script failed: %v", err)
		return true
	}

	return allowed == 1
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "Too many attempts, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
