package enums

import "fmt"

// DispatchTaskStatus tracks a queued dispatch attempt.
type DispatchTaskStatus string

const (
	DispatchTaskStatusPending DispatchTaskStatus = "pending"
	DispatchTaskStatusDone    DispatchTaskStatus = "done"
	DispatchTaskStatusFailed  DispatchTaskStatus = "failed"
)

var validDispatchTaskStatuses = []DispatchTaskStatus{
	DispatchTaskStatusPending,
	DispatchTaskStatusDone,
	DispatchTaskStatusFailed,
}

// String implements fmt.Stringer.
func (s DispatchTaskStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DispatchTaskStatus.
func (s DispatchTaskStatus) IsValid() bool {
	for _, candidate := range validDispatchTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDispatchTaskStatus converts raw input into a DispatchTaskStatus.
func ParseDispatchTaskStatus(value string) (DispatchTaskStatus, error) {
	for _, candidate := range validDispatchTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch task status %q", value)
}
