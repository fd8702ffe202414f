package enums

import "fmt"

// WalletTxKind is the fund direction of a ledger entry.
type WalletTxKind string

const (
	WalletTxKindCredit WalletTxKind = "credit"
	WalletTxKindDebit  WalletTxKind = "debit"
)

var validWalletTxKinds = []WalletTxKind{WalletTxKindCredit, WalletTxKindDebit}

// String implements fmt.Stringer.
func (k WalletTxKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known WalletTxKind.
func (k WalletTxKind) IsValid() bool {
	for _, candidate := range validWalletTxKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseWalletTxKind converts raw input into a WalletTxKind.
func ParseWalletTxKind(value string) (WalletTxKind, error) {
	for _, candidate := range validWalletTxKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet tx kind %q", value)
}

// WalletTxCause names the business event behind a ledger entry. Together
// with user and order it forms the idempotency key of the ledger.
type WalletTxCause string

const (
	WalletTxCauseOrderApproved   WalletTxCause = "order_approved"
	WalletTxCauseOrderRejected   WalletTxCause = "order_rejected"
	WalletTxCauseStatusChange    WalletTxCause = "status_change"
	WalletTxCauseDeposit         WalletTxCause = "deposit"
	WalletTxCauseDepositReversal WalletTxCause = "deposit_reversal"
)

var validWalletTxCauses = []WalletTxCause{
	WalletTxCauseOrderApproved,
	WalletTxCauseOrderRejected,
	WalletTxCauseStatusChange,
	WalletTxCauseDeposit,
	WalletTxCauseDepositReversal,
}

// String implements fmt.Stringer.
func (c WalletTxCause) String() string {
	return string(c)
}

// IsValid reports whether the value is a known WalletTxCause.
func (c WalletTxCause) IsValid() bool {
	for _, candidate := range validWalletTxCauses {
		if candidate == c {
			return true
		}
	}
	return false
}

// Kind returns the fund direction this cause implies.
func (c WalletTxCause) Kind() WalletTxKind {
	switch c {
	case WalletTxCauseOrderRejected, WalletTxCauseDeposit:
		return WalletTxKindCredit
	default:
		return WalletTxKindDebit
	}
}

// ParseWalletTxCause converts raw input into a WalletTxCause.
func ParseWalletTxCause(value string) (WalletTxCause, error) {
	for _, candidate := range validWalletTxCauses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet tx cause %q", value)
}
