// Package ratelimit bounds the outbound request rate to one external
// service. One Limiter is constructed per service at startup and passed by
// reference to whatever makes outbound calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket whose capacity equals its refill rate, so a
// caller can never burst past one second's worth of requests. Acquire waits
// cooperatively; it never returns an error of its own, only the context's.
type Limiter struct {
	bucket *rate.Limiter
}

func New(requestsPerSecond float64) *Limiter {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Acquire consumes one token, sleeping until one is available. Safe for
// concurrent callers.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
