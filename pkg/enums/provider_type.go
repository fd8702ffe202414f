package enums

import "fmt"

// ProviderType identifies the upstream protocol an integration speaks.
type ProviderType string

const (
	ProviderTypeZnet     ProviderType = "znet"
	ProviderTypeApstore  ProviderType = "apstore"
	ProviderTypeBarakat  ProviderType = "barakat"
	ProviderTypeInternal ProviderType = "internal"
)

var validProviderTypes = []ProviderType{
	ProviderTypeZnet,
	ProviderTypeApstore,
	ProviderTypeBarakat,
	ProviderTypeInternal,
}

// String implements fmt.Stringer.
func (t ProviderType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ProviderType.
func (t ProviderType) IsValid() bool {
	for _, candidate := range validProviderTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsInternal reports whether the integration targets another tenant on this
// platform rather than an outside vendor.
func (t ProviderType) IsInternal() bool {
	return t == ProviderTypeInternal
}

// ParseProviderType converts raw input into a ProviderType.
func ParseProviderType(value string) (ProviderType, error) {
	for _, candidate := range validProviderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider type %q", value)
}
