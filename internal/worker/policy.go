package worker

import (
	"math"
	"time"
)

// Decision is the outcome of consulting the retry policy after a failed run.
type Decision struct {
	DeadLetter bool
	Delay      time.Duration
}

// Decide is called with the attempt count after it has been incremented for
// the failure being handled. A job is dead-lettered once attempts exceeds
// maxRetries; otherwise it is retried after BackoffDelay(base, attempts).
func Decide(attempts, maxRetries, base int) Decision {
	if attempts > maxRetries {
		return Decision{DeadLetter: true}
	}
	return Decision{Delay: BackoffDelay(base, attempts)}
}

const maxBackoffSeconds = math.MaxInt64 / int64(time.Second)

// BackoffDelay returns base^attempts seconds, computed by integer
// exponentiation. Results that do not fit in a time.Duration saturate.
func BackoffDelay(base, attempts int) time.Duration {
	if attempts <= 0 {
		return time.Second
	}
	if base <= 0 {
		return 0
	}

	secs := int64(1)
	for i := 0; i < attempts; i++ {
		if secs > maxBackoffSeconds/int64(base) {
			return time.Duration(maxBackoffSeconds) * time.Second
		}
		secs *= int64(base)
	}
	return time.Duration(secs) * time.Second
}
