package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/observability"
)

const (
	defaultRetryInitial    = 200 * time.Millisecond
	defaultRetryMaxElapsed = 10 * time.Second

	requestRetryInitial    = 50 * time.Millisecond
	requestRetryMaxElapsed = 2 * time.Second
)

// Retrier retries operations that fail with transient connection errors.
// The zero value is usable.
type Retrier struct {
	Initial    time.Duration
	MaxElapsed time.Duration
	Logger     *zap.Logger
}

// Do runs fn until it succeeds, fails permanently, or the budget is spent.
func (r Retrier) Do(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultRetryInitial
	}
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = r.MaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = defaultRetryMaxElapsed
	}

	wrapped := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		observability.DBRetries.WithLabelValues(op).Inc()
		if r.Logger != nil {
			r.Logger.Warn("transient database error, retrying",
				zap.String("op", op),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}
	return backoff.RetryNotify(wrapped, backoff.WithContext(b, ctx), notify)
}

// WithRetry runs fn with the short budget used on request paths, so a dead
// database still surfaces as an error within a couple of seconds. fn must
// rebuild its query on every call.
func WithRetry(ctx context.Context, op string, logger *zap.Logger, fn func() error) error {
	r := Retrier{Initial: requestRetryInitial, MaxElapsed: requestRetryMaxElapsed, Logger: logger}
	return r.Do(ctx, op, fn)
}
