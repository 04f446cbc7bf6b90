package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"accountflow/logger"
)

// Limiter throttles outbound REST calls for a single exchange. All requests
// issued by a client share one limiter so pagination bursts cannot exceed the
// exchange budget.
type Limiter struct {
	limiter  *rate.Limiter
	exchange string
	log      *logger.Log
}

// New creates a limiter allowing rps requests per second with the given burst.
func New(exchange string, rps, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		exchange: exchange,
		log:      logger.GetLogger(),
	}
}

// Wait blocks until a request slot is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// ReportExceeded records a server-side throttle response so bursts show up in
// the metric stream even when the local limiter allowed the request.
func (l *Limiter) ReportExceeded(endpoint string) {
	component := l.exchange + "_rest"
	entry := l.log.WithComponent(component)
	fields := logger.Fields{
		"exchange": l.exchange,
		"endpoint": endpoint,
	}
	entry.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	entry.WithFields(fields).Warn("rate limit exceeded")
}
