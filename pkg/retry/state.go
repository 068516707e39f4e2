package retry

import (
	"time"
)

// Redis keys for budget state storage.
const (
	RedisKeyFailures = "catalog:retry:failures"
)

// Thresholds for budget decisions.
const (
	// FailureThresholdCritical blocks automatic reloads when the window holds
	// at least this many failures.
	FailureThresholdCritical = 30

	// FailureThresholdWarning marks the budget unhealthy.
	FailureThresholdWarning = 10

	// DefaultWindow is the length of the failure counting window.
	DefaultWindow = time.Minute
)

// BudgetState represents the failure budget in the current window.
// This state is shared across all browsers via Redis.
type BudgetState struct {
	// Failures counted in the current window.
	Failures int `json:"failures"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`

	// IsHealthy is true while Failures stays below FailureThresholdWarning.
	IsHealthy bool `json:"is_healthy"`
}

// NeedsCriticalBlock returns true if automatic reloads should be blocked.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.Failures >= FailureThresholdCritical
}

// NeedsWarning returns true if the failure rate is elevated but not critical.
func (s *BudgetState) NeedsWarning() bool {
	return s.Failures >= FailureThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Failures.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.Failures < FailureThresholdWarning
}
