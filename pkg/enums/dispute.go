package enums

import "fmt"

// DisputeStatus is the dispute workflow column.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "OPEN"
	DisputeStatusUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolved    DisputeStatus = "RESOLVED"
	DisputeStatusClosed      DisputeStatus = "CLOSED"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusResolved,
	DisputeStatusClosed,
}

// String implements fmt.Stringer.
func (d DisputeStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeStatus.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeResolution is the admin decision recorded on a resolved dispute.
type DisputeResolution string

const (
	DisputeResolutionRefund          DisputeResolution = "REFUND"
	DisputeResolutionReleaseToSeller DisputeResolution = "RELEASE_TO_SELLER"
	DisputeResolutionPartialRefund   DisputeResolution = "PARTIAL_REFUND"
	DisputeResolutionNoAction        DisputeResolution = "NO_ACTION"
)

var validDisputeResolutions = []DisputeResolution{
	DisputeResolutionRefund,
	DisputeResolutionReleaseToSeller,
	DisputeResolutionPartialRefund,
	DisputeResolutionNoAction,
}

// String implements fmt.Stringer.
func (d DisputeResolution) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeResolution.
func (d DisputeResolution) IsValid() bool {
	for _, candidate := range validDisputeResolutions {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeResolution converts raw input into a DisputeResolution.
func ParseDisputeResolution(value string) (DisputeResolution, error) {
	for _, candidate := range validDisputeResolutions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute resolution %q", value)
}
