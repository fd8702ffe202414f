package enums

import "fmt"

// ExternalStatus tracks where an order stands with its fulfillment target.
type ExternalStatus string

const (
	ExternalStatusNotSent    ExternalStatus = "not_sent"
	ExternalStatusSent       ExternalStatus = "sent"
	ExternalStatusProcessing ExternalStatus = "processing"
	ExternalStatusCompleted  ExternalStatus = "completed"
	ExternalStatusDelivered  ExternalStatus = "delivered"
	ExternalStatusFailed     ExternalStatus = "failed"
	ExternalStatusRejected   ExternalStatus = "rejected"
	ExternalStatusCancelled  ExternalStatus = "cancelled"
	ExternalStatusForwarded  ExternalStatus = "forwarded"
)

var validExternalStatuses = []ExternalStatus{
	ExternalStatusNotSent,
	ExternalStatusSent,
	ExternalStatusProcessing,
	ExternalStatusCompleted,
	ExternalStatusDelivered,
	ExternalStatusFailed,
	ExternalStatusRejected,
	ExternalStatusCancelled,
	ExternalStatusForwarded,
}

// String implements fmt.Stringer.
func (s ExternalStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ExternalStatus.
func (s ExternalStatus) IsValid() bool {
	for _, candidate := range validExternalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the external side will never change again.
func (s ExternalStatus) IsTerminal() bool {
	switch s {
	case ExternalStatusCompleted, ExternalStatusDelivered, ExternalStatusFailed,
		ExternalStatusRejected, ExternalStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseExternalStatus converts raw input into an ExternalStatus.
func ParseExternalStatus(value string) (ExternalStatus, error) {
	for _, candidate := range validExternalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid external status %q", value)
}
