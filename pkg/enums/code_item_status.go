package enums

import "fmt"

// CodeItemStatus tracks a pre-loaded redemption code through its lifecycle.
type CodeItemStatus string

const (
	CodeItemStatusAvailable CodeItemStatus = "available"
	CodeItemStatusReserved  CodeItemStatus = "reserved"
	CodeItemStatusUsed      CodeItemStatus = "used"
)

var validCodeItemStatuses = []CodeItemStatus{
	CodeItemStatusAvailable,
	CodeItemStatusReserved,
	CodeItemStatusUsed,
}

// String implements fmt.Stringer.
func (s CodeItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CodeItemStatus.
func (s CodeItemStatus) IsValid() bool {
	for _, candidate := range validCodeItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCodeItemStatus converts raw input into a CodeItemStatus.
func ParseCodeItemStatus(value string) (CodeItemStatus, error) {
	for _, candidate := range validCodeItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid code item status %q", value)
}
