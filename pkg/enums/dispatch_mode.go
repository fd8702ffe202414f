package enums

import "fmt"

// DispatchMode records how an order is (or will be) fulfilled.
type DispatchMode string

const (
	DispatchModeManual       DispatchMode = "MANUAL"
	DispatchModeAuto         DispatchMode = "AUTO"
	DispatchModeChainForward DispatchMode = "CHAIN_FORWARD"
)

var validDispatchModes = []DispatchMode{
	DispatchModeManual,
	DispatchModeAuto,
	DispatchModeChainForward,
}

// String implements fmt.Stringer.
func (m DispatchMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known DispatchMode.
func (m DispatchMode) IsValid() bool {
	for _, candidate := range validDispatchModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseDispatchMode converts raw input into a DispatchMode.
func ParseDispatchMode(value string) (DispatchMode, error) {
	for _, candidate := range validDispatchModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch mode %q", value)
}
