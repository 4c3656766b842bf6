package config

import (
	"fmt"
	"strings"
)

type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateProcessing JobState = "PROCESSING"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateFailed     JobState = "FAILED"
	JobStateDead       JobState = "DEAD"
)

var AllJobStates = []JobState{
	JobStatePending,
	JobStateProcessing,
	JobStateCompleted,
	JobStateFailed,
	JobStateDead,
}

// ParseJobState matches name case-insensitively against the known states.
func ParseJobState(name string) (JobState, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, s := range AllJobStates {
		if string(s) == want {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", name)
}

const (
	BackoffModeSleep    = "sleep"
	BackoffModeSchedule = "schedule"
)

// Keys accepted by Config.Get and Config.Set.
const (
	KeyMaxRetries      = "max_retries"
	KeyBaseBackoff     = "base_backoff"
	KeyPollInterval    = "poll_interval"
	KeyBackoffMode     = "backoff_mode"
	KeyShell           = "shell"
	KeyClaimRetries    = "claim_retries"
	KeyStaleAfter      = "stale_after"
	KeyShutdownTimeout = "shutdown_timeout"
)

const DefaultDLQReason = "exceeded max retries"
