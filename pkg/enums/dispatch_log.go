package enums

import "fmt"

// DispatchAction labels what a dispatch-log row records.
type DispatchAction string

const (
	DispatchActionManualSet        DispatchAction = "MANUAL_SET"
	DispatchActionCodeAllocated    DispatchAction = "CODE_ALLOCATED"
	DispatchActionCodesExhausted   DispatchAction = "CODES_EXHAUSTED"
	DispatchActionChainForward     DispatchAction = "CHAIN_FORWARD"
	DispatchActionExternalDispatch DispatchAction = "EXTERNAL_DISPATCH"
	DispatchActionAutoFallback     DispatchAction = "AUTO_FALLBACK"
	DispatchActionChainStatus      DispatchAction = "CHAIN_STATUS"
	DispatchActionChainBroken      DispatchAction = "CHAIN_BROKEN"
	DispatchActionStatusChange     DispatchAction = "STATUS_CHANGE"
	DispatchActionPollSync         DispatchAction = "POLL_SYNC"
)

var validDispatchActions = []DispatchAction{
	DispatchActionManualSet,
	DispatchActionCodeAllocated,
	DispatchActionCodesExhausted,
	DispatchActionChainForward,
	DispatchActionExternalDispatch,
	DispatchActionAutoFallback,
	DispatchActionChainStatus,
	DispatchActionChainBroken,
	DispatchActionStatusChange,
	DispatchActionPollSync,
}

// String implements fmt.Stringer.
func (a DispatchAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known DispatchAction.
func (a DispatchAction) IsValid() bool {
	for _, candidate := range validDispatchActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseDispatchAction converts raw input into a DispatchAction.
func ParseDispatchAction(value string) (DispatchAction, error) {
	for _, candidate := range validDispatchActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch action %q", value)
}

// DispatchResult is the coarse outcome stamped on a dispatch-log row.
type DispatchResult string

const (
	DispatchResultOK      DispatchResult = "ok"
	DispatchResultFailed  DispatchResult = "failed"
	DispatchResultSkipped DispatchResult = "skipped"
)

var validDispatchResults = []DispatchResult{
	DispatchResultOK,
	DispatchResultFailed,
	DispatchResultSkipped,
}

// String implements fmt.Stringer.
func (r DispatchResult) String() string {
	return string(r)
}

// IsValid reports whether the value is a known DispatchResult.
func (r DispatchResult) IsValid() bool {
	for _, candidate := range validDispatchResults {
		if candidate == r {
			return true
		}
	}
	return false
}
