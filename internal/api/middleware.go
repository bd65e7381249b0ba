package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

// requestLogger logs each request with method, path, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("Server: request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// rateLimiter enforces a fixed-window per-client request limit backed by an
// expiring cache. A non-positive limit disables the middleware.
type rateLimiter struct {
	limit  int
	window time.Duration
	hits   *gocache.Cache
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		hits:   gocache.New(window, 2*window),
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if n, over := rl.count(key); over {
			slog.Warn("Server: rate limit exceeded", "client", key, "hits", n)
			writeJSONResponse(w, http.StatusTooManyRequests,
				models.Error(models.ErrorCodeRateLimit.UserMessage()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe counts like middleware but only logs when a client crosses the
// limit. The Flow webhook must keep answering, so it is never rejected.
func (rl *rateLimiter) observe(next http.Handler) http.Handler {
	if rl.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if n, over := rl.count(key); over {
			slog.Warn("Server: webhook request rate above limit", "client", key, "hits", n)
		}
		next.ServeHTTP(w, r)
	})
}

// count records one hit for key and reports whether the client is over the
// window limit.
func (rl *rateLimiter) count(key string) (int64, bool) {
	if err := rl.hits.Add(key, int64(1), rl.window); err != nil {
		n, incErr := rl.hits.IncrementInt64(key, 1)
		if incErr == nil && n > int64(rl.limit) {
			return n, true
		}
		return n, false
	}
	return 1, false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
