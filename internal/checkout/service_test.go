package checkout

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/internal/cart"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type staticSettings struct{}

func (staticSettings) PlatformFeePercent(context.Context) decimal.Decimal {
	return decimal.NewFromInt(5)
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	buyerID uuid.UUID
	farmer  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{}, &models.EscrowTransaction{},
		&models.OutboxEvent{},
	))

	obSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), cart.NewRepository(db), gormTxRunner{db: db}, obSvc, staticSettings{}, nil)
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, buyerID: uuid.New(), farmer: uuid.New()}
}

func (f *fixture) seedCartWithProduct(t *testing.T, price, available, qty int64) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:                uuid.New(),
		FarmerID:          f.farmer,
		Name:              "Tomatoes",
		Category:          "vegetables",
		Unit:              "kg",
		UnitPricePesewas:  price,
		QuantityAvailable: available,
		MinimumOrderQty:   5,
		Status:            enums.ProductStatusAvailable,
	}
	require.NoError(t, f.db.Create(&product).Error)

	cartRow := models.Cart{
		ID:        uuid.New(),
		BuyerID:   f.buyerID,
		FarmerID:  f.farmer,
		Status:    enums.CartStatusActive,
		ExpiresAt: time.Now().Add(8 * time.Hour),
	}
	require.NoError(t, f.db.Create(&cartRow).Error)

	item := models.CartItem{
		ID:               uuid.New(),
		CartID:           cartRow.ID,
		ProductID:        product.ID,
		Quantity:         qty,
		UnitPricePesewas: price,
	}
	require.NoError(t, f.db.Create(&item).Error)
	return product.ID
}

func TestCheckoutCreatesOrderEscrowAndDecrementsStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedCartWithProduct(t, 850, 100, 10)

	result, err := f.svc.Checkout(context.Background(), Input{
		BuyerID:         f.buyerID,
		DeliveryMethod:  enums.DeliveryMethodDelivery,
		DeliveryAddress: "12 Ring Road, Accra",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(8_500), result.SubtotalPesewas)
	assert.Equal(t, int64(425), result.PlatformFeePesewas)
	assert.Equal(t, int64(2_000), result.DeliveryFeePesewas)
	assert.Equal(t, int64(10_925), result.TotalPesewas)

	var order models.Order
	require.NoError(t, f.db.Preload("Items").First(&order, "id = ?", result.OrderID).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Tomatoes", order.Items[0].ProductName)
	assert.Equal(t, order.TotalPesewas, order.SubtotalPesewas+order.PlatformFeePesewas+order.DeliveryFeePesewas)

	var escrow models.EscrowTransaction
	require.NoError(t, f.db.First(&escrow, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.EscrowStatusPending, escrow.Status)
	assert.Equal(t, int64(10_925), escrow.AmountPesewas)
	assert.Equal(t, int64(8_075), escrow.SellerPayoutPesewas)
	assert.Equal(t, int64(2_000), escrow.DeliveryFeePesewas)

	var product models.Product
	require.NoError(t, f.db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, int64(90), product.QuantityAvailable)

	var cartRow models.Cart
	require.NoError(t, f.db.First(&cartRow, "buyer_id = ?", f.buyerID).Error)
	assert.Equal(t, enums.CartStatusCheckedOut, cartRow.Status)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderCreated).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCheckoutFailsAtomicallyWhenStockChanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedCartWithProduct(t, 850, 8, 10)

	_, err := f.svc.Checkout(context.Background(), Input{
		BuyerID:        f.buyerID,
		DeliveryMethod: enums.DeliveryMethodPickup,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.NotNil(t, typed.Details())

	// Nothing landed: no order, no escrow, stock untouched, cart still active.
	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)

	var product models.Product
	require.NoError(t, f.db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, int64(8), product.QuantityAvailable)

	var cartRow models.Cart
	require.NoError(t, f.db.First(&cartRow, "buyer_id = ?", f.buyerID).Error)
	assert.Equal(t, enums.CartStatusActive, cartRow.Status)
}

func TestCheckoutRequiresDeliveryAddress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedCartWithProduct(t, 850, 100, 10)

	_, err := f.svc.Checkout(context.Background(), Input{
		BuyerID:        f.buyerID,
		DeliveryMethod: enums.DeliveryMethodDelivery,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCheckoutWithoutCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), Input{
		BuyerID:        f.buyerID,
		DeliveryMethod: enums.DeliveryMethodPickup,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestCheckoutRejectsExpiredCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedCartWithProduct(t, 850, 100, 10)
	require.NoError(t, f.db.Model(&models.Cart{}).
		Where("buyer_id = ?", f.buyerID).
		Update("expires_at", time.Now().Add(-12*time.Hour)).Error)

	_, err := f.svc.Checkout(context.Background(), Input{
		BuyerID:        f.buyerID,
		DeliveryMethod: enums.DeliveryMethodPickup,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCheckoutSerializesConcurrentBuyers(t *testing.T) {
	t.Parallel()
	// Two buyers race for the same 5 units, each asking for 3. The
	// guarded decrement admits exactly one. The file-backed database
	// with immediate transactions mirrors how Postgres serializes the
	// two writers.
	dsn := "file:" + filepath.Join(t.TempDir(), "checkout.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{}, &models.EscrowTransaction{},
		&models.OutboxEvent{},
	))

	obSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), cart.NewRepository(db), gormTxRunner{db: db}, obSvc, staticSettings{}, nil)
	require.NoError(t, err)

	farmer := uuid.New()
	product := models.Product{
		ID:                uuid.New(),
		FarmerID:          farmer,
		Name:              "Tomatoes",
		Category:          "vegetables",
		Unit:              "kg",
		UnitPricePesewas:  850,
		QuantityAvailable: 5,
		MinimumOrderQty:   1,
		Status:            enums.ProductStatusAvailable,
	}
	require.NoError(t, db.Create(&product).Error)

	buyers := []uuid.UUID{uuid.New(), uuid.New()}
	for _, buyerID := range buyers {
		cartRow := models.Cart{
			ID:        uuid.New(),
			BuyerID:   buyerID,
			FarmerID:  farmer,
			Status:    enums.CartStatusActive,
			ExpiresAt: time.Now().Add(8 * time.Hour),
		}
		require.NoError(t, db.Create(&cartRow).Error)
		require.NoError(t, db.Create(&models.CartItem{
			ID:               uuid.New(),
			CartID:           cartRow.ID,
			ProductID:        product.ID,
			Quantity:         3,
			UnitPricePesewas: 850,
		}).Error)
	}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, buyerID := range buyers {
		wg.Add(1)
		go func(i int, buyerID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), Input{
				BuyerID:        buyerID,
				DeliveryMethod: enums.DeliveryMethodPickup,
			})
		}(i, buyerID)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	var updated models.Product
	require.NoError(t, db.First(&updated, "id = ?", product.ID).Error)
	assert.Equal(t, int64(2), updated.QuantityAvailable)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}
