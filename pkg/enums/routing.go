package enums

import "fmt"

// RoutingMode decides whether a package is fulfilled automatically or by hand.
type RoutingMode string

const (
	RoutingModeAuto   RoutingMode = "auto"
	RoutingModeManual RoutingMode = "manual"
)

var validRoutingModes = []RoutingMode{RoutingModeAuto, RoutingModeManual}

// String implements fmt.Stringer.
func (m RoutingMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known RoutingMode.
func (m RoutingMode) IsValid() bool {
	for _, candidate := range validRoutingModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRoutingMode converts raw input into a RoutingMode.
func ParseRoutingMode(value string) (RoutingMode, error) {
	for _, candidate := range validRoutingModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid routing mode %q", value)
}

// RoutingProviderType names the fulfillment source class a routing row points at.
type RoutingProviderType string

const (
	RoutingProviderExternal      RoutingProviderType = "external"
	RoutingProviderCodes         RoutingProviderType = "codes"
	RoutingProviderInternalCodes RoutingProviderType = "internal_codes"
	RoutingProviderManual        RoutingProviderType = "manual"
)

var validRoutingProviderTypes = []RoutingProviderType{
	RoutingProviderExternal,
	RoutingProviderCodes,
	RoutingProviderInternalCodes,
	RoutingProviderManual,
}

// String implements fmt.Stringer.
func (t RoutingProviderType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known RoutingProviderType.
func (t RoutingProviderType) IsValid() bool {
	for _, candidate := range validRoutingProviderTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCodeBacked reports whether the routing consumes pre-loaded codes.
func (t RoutingProviderType) IsCodeBacked() bool {
	return t == RoutingProviderCodes || t == RoutingProviderInternalCodes
}

// ParseRoutingProviderType converts raw input into a RoutingProviderType.
func ParseRoutingProviderType(value string) (RoutingProviderType, error) {
	for _, candidate := range validRoutingProviderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid routing provider type %q", value)
}
