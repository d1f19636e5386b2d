package usecase

import "time"

// calculateBackoffDelay returns base * 2^(retryCount-1), capped at max.
// retryCount is the count after the failed attempt, so the first retry waits base.
func calculateBackoffDelay(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if retryCount < 1 {
		retryCount = 1
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// BackoffDelay is the retry schedule shared with message consumers that back off on
// infrastructure errors. attempt starts at 1.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	return calculateBackoffDelay(attempt, base, max)
}
