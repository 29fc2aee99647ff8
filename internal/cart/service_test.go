package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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

type fixture struct {
	db      *gorm.DB
	svc     Service
	buyerID uuid.UUID
	farmer  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{}, &models.OutboxEvent{},
	))

	repo := NewRepository(db)
	obSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(repo, gormTxRunner{db: db}, obSvc, DefaultTTL)
	require.NoError(t, err)

	return &fixture{
		db:      db,
		svc:     svc,
		buyerID: uuid.New(),
		farmer:  uuid.New(),
	}
}

func (f *fixture) seedProduct(t *testing.T, farmerID uuid.UUID, price, qty, minQty int64) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:                uuid.New(),
		FarmerID:          farmerID,
		Name:              "Tomatoes",
		Category:          "vegetables",
		Unit:              "kg",
		UnitPricePesewas:  price,
		QuantityAvailable: qty,
		MinimumOrderQty:   minQty,
		Status:            enums.ProductStatusAvailable,
	}
	require.NoError(t, f.db.Create(&product).Error)
	return product.ID
}

func TestAddItemCreatesCartAndComputesSubtotal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 5)

	view, err := f.svc.AddItem(context.Background(), AddItemInput{
		BuyerID: f.buyerID, ProductID: productID, Qty: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, string(enums.CartStatusActive), view.Status)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, int64(8_500), view.SubtotalPesewas)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), view.ExpiresAt, time.Minute)
}

func TestAddItemSumsQuantityOnRepeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 5)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 10})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 5})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(15), view.Items[0].Quantity)
}

func (f *fixture) expireCart(t *testing.T, buyerID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Cart{}).
		Where("buyer_id = ? AND status = ?", buyerID, enums.CartStatusActive).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)
}

func TestGetTreatsExpiredCartAsAbsent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 5)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 10})
	require.NoError(t, err)
	f.expireCart(t, f.buyerID)

	_, err = f.svc.Get(ctx, f.buyerID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestAddItemReplacesExpiredCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 5)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 10})
	require.NoError(t, err)
	f.expireCart(t, f.buyerID)

	view, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 5})
	require.NoError(t, err)

	// A fresh cart took the slot; the lapsed one was retired.
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(5), view.Items[0].Quantity)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), view.ExpiresAt, time.Minute)

	var retired int64
	require.NoError(t, f.db.Model(&models.Cart{}).
		Where("buyer_id = ? AND status = ?", f.buyerID, enums.CartStatusExpired).
		Count(&retired).Error)
	assert.Equal(t, int64(1), retired)
}

func TestAddItemBelowMinimumOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 5)

	_, err := f.svc.AddItem(context.Background(), AddItemInput{
		BuyerID: f.buyerID, ProductID: productID, Qty: 3,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestAddItemInsufficientStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 8, 5)

	_, err := f.svc.AddItem(context.Background(), AddItemInput{
		BuyerID: f.buyerID, ProductID: productID, Qty: 10,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestAddItemRejectsSecondFarmer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := f.seedProduct(t, f.farmer, 850, 100, 1)
	otherFarmer := uuid.New()
	second := f.seedProduct(t, otherFarmer, 500, 100, 1)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: first, Qty: 2})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: second, Qty: 2})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestAddItemRejectsSelfPurchase(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.buyerID, 850, 100, 1)

	_, err := f.svc.AddItem(context.Background(), AddItemInput{
		BuyerID: f.buyerID, ProductID: productID, Qty: 2,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRemoveLastItemAbandonsCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 1)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 2})
	require.NoError(t, err)

	view, err := f.svc.RemoveItem(ctx, f.buyerID, productID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.CartStatusAbandoned), view.Status)

	_, err = f.svc.Get(ctx, f.buyerID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestExpireStaleRetiresOldCartsAndEmitsEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	productID := f.seedProduct(t, f.farmer, 850, 100, 1)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, AddItemInput{BuyerID: f.buyerID, ProductID: productID, Qty: 2})
	require.NoError(t, err)

	// Force the cart past its expiry.
	require.NoError(t, f.db.Model(&models.Cart{}).
		Where("buyer_id = ?", f.buyerID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	retired, err := f.svc.ExpireStale(ctx, time.Now(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	var cartRow models.Cart
	require.NoError(t, f.db.First(&cartRow, "buyer_id = ?", f.buyerID).Error)
	assert.Equal(t, enums.CartStatusExpired, cartRow.Status)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventCartExpired).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}
