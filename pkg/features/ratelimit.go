package features

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// RateLimit caps how many records a sink accepts. It is a token bucket refilled at
// PerSecond with room for Burst records.
type RateLimit struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimit creates a limiter. perSecond must be positive and burst at least 1.
func NewRateLimit(perSecond float64, burst int) (*RateLimit, error) {
	if perSecond <= 0 || math.IsNaN(perSecond) || math.IsInf(perSecond, 0) {
		return nil, types.ConfigError("rate_limit", "rate must be a positive number, got %v", perSecond)
	}
	if burst < 1 {
		return nil, types.ConfigError("rate_limit", "burst must be at least 1, got %d", burst)
	}
	return &RateLimit{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		now:     time.Now,
	}, nil
}

// Allow consumes one token if available.
func (r *RateLimit) Allow() bool {
	return r.limiter.AllowN(r.now(), 1)
}

// Burst returns the bucket size.
func (r *RateLimit) Burst() int {
	return r.limiter.Burst()
}

// PerSecond returns the refill rate.
func (r *RateLimit) PerSecond() float64 {
	return float64(r.limiter.Limit())
}
