package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/cercabus/cercabus/internal/api/models"
)

// RateLimitConfig holds one limiter's window.
type RateLimitConfig struct {
	// RequestLimit is the number of requests allowed per window.
	RequestLimit int
	// WindowLength is the window duration.
	WindowLength time.Duration
}

func perMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// Default limiter tiers. The arrivals tier is the tight one: every request
// there fans out to the EMT API, and the provider enforces its own quota on
// our credentials.
var (
	// AuthRateLimit applies to the token exchange endpoint.
	AuthRateLimit = perMinute(10)

	// ArrivalsRateLimit applies to arrival and stop queries.
	ArrivalsRateLimit = perMinute(30)

	// StandardRateLimit applies to watch CRUD and other local endpoints.
	StandardRateLimit = perMinute(100)
)

// RateLimitByIP limits by client IP, as resolved by chi's RealIP middleware
// earlier in the chain.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// limitExceeded writes the 429 problem. httprate does not expose the exact
// reset time, so Retry-After reports the full window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength / time.Second))

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
