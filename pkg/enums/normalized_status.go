package enums

import "fmt"

// NormalizedStatus is the closed vocabulary vendor adapters translate
// heterogeneous upstream status strings into.
type NormalizedStatus string

const (
	NormalizedStatusSent       NormalizedStatus = "sent"
	NormalizedStatusProcessing NormalizedStatus = "processing"
	NormalizedStatusCompleted  NormalizedStatus = "completed"
	NormalizedStatusFailed     NormalizedStatus = "failed"
	NormalizedStatusRejected   NormalizedStatus = "rejected"
	NormalizedStatusCancelled  NormalizedStatus = "cancelled"
)

var validNormalizedStatuses = []NormalizedStatus{
	NormalizedStatusSent,
	NormalizedStatusProcessing,
	NormalizedStatusCompleted,
	NormalizedStatusFailed,
	NormalizedStatusRejected,
	NormalizedStatusCancelled,
}

// String implements fmt.Stringer.
func (s NormalizedStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known NormalizedStatus.
func (s NormalizedStatus) IsValid() bool {
	for _, candidate := range validNormalizedStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the vendor will never change this status again.
func (s NormalizedStatus) IsTerminal() bool {
	switch s {
	case NormalizedStatusCompleted, NormalizedStatusFailed,
		NormalizedStatusRejected, NormalizedStatusCancelled:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the terminal status delivers the goods.
func (s NormalizedStatus) IsSuccess() bool {
	return s == NormalizedStatusCompleted
}

// ExternalStatus maps the normalized vocabulary onto the order column.
func (s NormalizedStatus) ExternalStatus() ExternalStatus {
	switch s {
	case NormalizedStatusSent:
		return ExternalStatusSent
	case NormalizedStatusProcessing:
		return ExternalStatusProcessing
	case NormalizedStatusCompleted:
		return ExternalStatusCompleted
	case NormalizedStatusFailed:
		return ExternalStatusFailed
	case NormalizedStatusRejected:
		return ExternalStatusRejected
	case NormalizedStatusCancelled:
		return ExternalStatusCancelled
	default:
		return ExternalStatusProcessing
	}
}

// ParseNormalizedStatus converts raw input into a NormalizedStatus.
func ParseNormalizedStatus(value string) (NormalizedStatus, error) {
	for _, candidate := range validNormalizedStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid normalized status %q", value)
}
