package retries

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

const (
	DefaultAttempts = 3
	HealthAttempts  = 2
)

var (
	DefaultBaseDelay = 100 * time.Millisecond
	HealthBaseDelay  = 50 * time.Millisecond
)

// Retry runs fn up to attempts times with exponential backoff starting at
// baseDelay. Non-retriable errors and context cancellation stop immediately.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, isRetriable func(error) bool) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if isRetriable != nil && !isRetriable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}

// IsRetriableDbError reports whether a DynamoDB error is worth retrying.
func IsRetriableDbError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		// network-level failures are retriable
		return true
	}

	switch apiErr.ErrorCode() {
	case "ThrottlingException",
		"ProvisionedThroughputExceededException",
		"RequestLimitExceeded",
		"InternalServerError",
		"ServiceUnavailable":
		return true
	}
	return false
}
