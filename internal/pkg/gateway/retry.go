package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	retryAttempts     = 3
	retryInitialDelay = 250 * time.Millisecond
)

// WithRetry runs op with bounded retries and exponential backoff. Only
// transient gateway errors are retried; business errors (declines, invalid
// requests, unsupported operations) are returned immediately so a declined
// card is never charged again by the retry loop.
func WithRetry(ctx context.Context, gatewayName, operation string, op func() error) error {
	var err error
	delay := retryInitialDelay
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		var gwErr *Error
		if !errors.As(err, &gwErr) || !gwErr.IsTransient() {
			return err
		}
		if attempt == retryAttempts {
			break
		}

		log.Warnf("[Gateway] %s %s transient failure (attempt %d/%d): %v", gatewayName, operation, attempt, retryAttempts, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
