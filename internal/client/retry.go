package client

import (
	"context"
	"time"

	"meshhub/internal/huberr"
	"meshhub/internal/utils"
)

// WithRetry retries fn up to 3 times with exponential backoff (1s, 2s,
// 4s) when it fails with a TransportError, per §4.11. Any other error is
// returned immediately without retrying — a waitForMentions timing out
// empty is a normal outcome, not a failure, and validation errors
// (ThreadClosed, NotAParticipant, ...) are not naturally retryable.
func WithRetry(ctx context.Context, logger *utils.Logger, op string, fn func() error) error {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !huberr.Is(lastErr, huberr.TransportError) {
			return lastErr
		}
		if attempt == 3 {
			break
		}
		logger.Warnf("%s failed (attempt %d/3): %v, retrying in %s", op, attempt, lastErr, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	logger.Errorf("%s exhausted retries: %v", op, lastErr)
	return lastErr
}
