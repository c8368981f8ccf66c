package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// callWithRetry executes an RPC call with retry logic.
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(callCtx)
		cancel()

		// If successful or not retryable, return the result
		if err == nil || !isRetryableError(err) {
			return err
		}

		lastErr = err
		if attempt == c.config.MaxRetries {
			break
		}

		// Exponential backoff between attempts
		delay := c.config.RetryDelay * time.Duration(float64(attempt+1)*c.config.BackoffFactor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, c.config.MaxRetries+1, lastErr)
}

// isRetryableError checks if an error is retryable.
func isRetryableError(err error) bool {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return false
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
			return true
		case codes.Internal, codes.Unknown:
			return true
		default:
			return false
		}
	}

	return false
}
