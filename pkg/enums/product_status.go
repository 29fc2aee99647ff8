package enums

import "fmt"

// ProductStatus controls listing visibility and purchasability.
type ProductStatus string

const (
	ProductStatusAvailable  ProductStatus = "AVAILABLE"
	ProductStatusOutOfStock ProductStatus = "OUT_OF_STOCK"
	ProductStatusInactive   ProductStatus = "INACTIVE"
)

var validProductStatuses = []ProductStatus{
	ProductStatusAvailable,
	ProductStatusOutOfStock,
	ProductStatusInactive,
}

// String implements fmt.Stringer.
func (p ProductStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductStatus.
func (p ProductStatus) IsValid() bool {
	for _, candidate := range validProductStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductStatus converts raw input into a ProductStatus.
func ParseProductStatus(value string) (ProductStatus, error) {
	for _, candidate := range validProductStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product status %q", value)
}
