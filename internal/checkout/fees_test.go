package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

var fivePercent = decimal.NewFromInt(5)

func TestCalculateFeesDelivery(t *testing.T) {
	t.Parallel()

	// 10kg at GHS 8.50/kg: subtotal 85.00, fee 4.25, delivery 20.00.
	fees := CalculateFees(8_500, enums.DeliveryMethodDelivery, fivePercent)

	assert.Equal(t, int64(8_500), fees.SubtotalPesewas)
	assert.Equal(t, int64(425), fees.PlatformFeePesewas)
	assert.Equal(t, int64(2_000), fees.DeliveryFeePesewas)
	assert.Equal(t, int64(10_925), fees.TotalPesewas)
	assert.Equal(t, int64(8_075), fees.SellerPayoutPesewas())
}

func TestCalculateFeesDeliverySurchargeAboveThreshold(t *testing.T) {
	t.Parallel()

	// GHS 600 subtotal crosses the GHS 500 threshold: 2% surcharge applies.
	fees := CalculateFees(60_000, enums.DeliveryMethodDelivery, fivePercent)

	assert.Equal(t, int64(3_000), fees.PlatformFeePesewas)
	assert.Equal(t, int64(2_000+1_200), fees.DeliveryFeePesewas)
	assert.Equal(t, int64(60_000+3_000+3_200), fees.TotalPesewas)
}

func TestCalculateFeesPickupHasNoDeliveryFee(t *testing.T) {
	t.Parallel()

	fees := CalculateFees(8_500, enums.DeliveryMethodPickup, fivePercent)

	assert.Equal(t, int64(0), fees.DeliveryFeePesewas)
	assert.Equal(t, int64(8_925), fees.TotalPesewas)
}

func TestCalculateFeesFractionalPercentRounds(t *testing.T) {
	t.Parallel()

	// 7.5% of 85.00 is 6.375, rounded to 6.38.
	fees := CalculateFees(8_500, enums.DeliveryMethodPickup, decimal.RequireFromString("7.5"))

	assert.Equal(t, int64(638), fees.PlatformFeePesewas)
	assert.Equal(t, int64(8_500+638), fees.TotalPesewas)
}

func TestCalculateFeesTotalInvariant(t *testing.T) {
	t.Parallel()

	for _, subtotal := range []int64{1, 999, 8_500, 50_000, 50_001, 1_000_000} {
		for _, method := range []enums.DeliveryMethod{enums.DeliveryMethodPickup, enums.DeliveryMethodDelivery} {
			fees := CalculateFees(subtotal, method, fivePercent)
			assert.Equal(t, fees.TotalPesewas, fees.SubtotalPesewas+fees.PlatformFeePesewas+fees.DeliveryFeePesewas)
		}
	}
}
