package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Delivery pricing in pesewas. Orders above the threshold pay a
// distance-agnostic surcharge on top of the base fee.
const (
	deliveryBaseFeePesewas     = 2_000
	deliverySurchargeThreshold = 50_000
	deliverySurchargePercent   = 2
)

// FeeBreakdown is the money split computed at checkout and frozen onto
// the order. Total always equals subtotal + platform fee + delivery fee.
type FeeBreakdown struct {
	SubtotalPesewas    int64
	PlatformFeePesewas int64
	DeliveryFeePesewas int64
	TotalPesewas       int64
}

// SellerPayoutPesewas is what the farmer receives on release: the
// subtotal minus the platform's cut. The delivery fee stays with the
// platform to cover logistics.
func (f FeeBreakdown) SellerPayoutPesewas() int64 {
	return f.SubtotalPesewas - f.PlatformFeePesewas
}

// CalculateFees computes the checkout money split from the cart
// subtotal. platformFeePercent is a percentage (5 means 5%, 7.5 means
// 7.5%); the fee is rounded to the nearest pesewa, half away from zero.
func CalculateFees(subtotalPesewas int64, method enums.DeliveryMethod, platformFeePercent decimal.Decimal) FeeBreakdown {
	platformFee := decimal.NewFromInt(subtotalPesewas).
		Mul(platformFeePercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	var deliveryFee int64
	if method == enums.DeliveryMethodDelivery {
		deliveryFee = deliveryBaseFeePesewas
		if subtotalPesewas > deliverySurchargeThreshold {
			deliveryFee += subtotalPesewas * deliverySurchargePercent / 100
		}
	}

	return FeeBreakdown{
		SubtotalPesewas:    subtotalPesewas,
		PlatformFeePesewas: platformFee,
		DeliveryFeePesewas: deliveryFee,
		TotalPesewas:       subtotalPesewas + platformFee + deliveryFee,
	}
}
