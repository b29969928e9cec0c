package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// SendLimiter paces outbound gateway calls for the whole process. All
// dispatcher goroutines draw from the same bucket, so aggregate throughput
// stays bounded no matter how many tenants are sending.
type SendLimiter struct {
	bucket *rate.Limiter
}

// NewSendLimiter creates the process-wide limiter with the given refill rate
// and burst size.
func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or the context ends.
func (l *SendLimiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Allow reports whether a send may proceed immediately without blocking.
func (l *SendLimiter) Allow() bool {
	return l.bucket.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *SendLimiter) Tokens() float64 {
	return l.bucket.Tokens()
}
