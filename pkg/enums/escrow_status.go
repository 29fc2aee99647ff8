package enums

import "fmt"

// EscrowStatus is the escrow state machine column.
type EscrowStatus string

const (
	EscrowStatusPending           EscrowStatus = "PENDING"
	EscrowStatusPaymentInitiated  EscrowStatus = "PAYMENT_INITIATED"
	EscrowStatusHeld              EscrowStatus = "HELD"
	EscrowStatusReleased          EscrowStatus = "RELEASED"
	EscrowStatusRefunded          EscrowStatus = "REFUNDED"
	EscrowStatusPartiallyRefunded EscrowStatus = "PARTIALLY_REFUNDED"
	EscrowStatusDisputed          EscrowStatus = "DISPUTED"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusPending,
	EscrowStatusPaymentInitiated,
	EscrowStatusHeld,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusPartiallyRefunded,
	EscrowStatusDisputed,
}

// String implements fmt.Stringer.
func (e EscrowStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EscrowStatus.
func (e EscrowStatus) IsValid() bool {
	for _, candidate := range validEscrowStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsTerminal reports whether funds have reached their final destination.
func (e EscrowStatus) IsTerminal() bool {
	switch e {
	case EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusPartiallyRefunded:
		return true
	}
	return false
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
