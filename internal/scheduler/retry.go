package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds how often an observer call is repeated
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Logger      *logrus.Logger
}

// LinearBackoff waits base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// DefaultRetryPolicy is 3 attempts with a 5s linear backoff
func DefaultRetryPolicy(logger *logrus.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(5 * time.Second),
		Logger:      logger,
	}
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// Extraction failures are permanent: the page will not grow the element.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(ctx, err) {
			return err
		}

		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"of":      attempts,
			}).WithError(err).Warnf("⚠️  Attempt failed, retrying in %v", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, game.ErrExtraction)
}
