package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/internal/escrow"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubReleaser struct {
	calls []escrow.ReleaseInput
	err   error
}

func (r *stubReleaser) Release(_ context.Context, input escrow.ReleaseInput) error {
	r.calls = append(r.calls, input)
	return r.err
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	releaser *stubReleaser
	buyerID  uuid.UUID
	farmerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Order{}, &models.OrderItem{},
		&models.EscrowTransaction{}, &models.OutboxEvent{},
	))

	releaser := &stubReleaser{}
	obSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, obSvc, releaser, nil)
	require.NoError(t, err)

	return &fixture{
		db:       db,
		svc:      svc,
		releaser: releaser,
		buyerID:  uuid.New(),
		farmerID: uuid.New(),
	}
}

type seedOpts struct {
	status   enums.OrderStatus
	method   enums.DeliveryMethod
	withItem bool
}

func (f *fixture) seedOrder(t *testing.T, opts seedOpts) *models.Order {
	t.Helper()
	if opts.method == "" {
		opts.method = enums.DeliveryMethodDelivery
	}
	order := models.Order{
		ID:                 uuid.New(),
		OrderNumber:        "ORD-1700000000-" + uuid.NewString()[:6],
		BuyerID:            f.buyerID,
		FarmerID:           f.farmerID,
		Status:             opts.status,
		PaymentStatus:      enums.PaymentStatusPaid,
		SubtotalPesewas:    8_500,
		PlatformFeePesewas: 425,
		DeliveryFeePesewas: 2_000,
		TotalPesewas:       10_925,
		DeliveryMethod:     opts.method,
	}
	require.NoError(t, f.db.Create(&order).Error)

	esc := models.EscrowTransaction{
		ID:                  uuid.New(),
		OrderID:             order.ID,
		BuyerID:             f.buyerID,
		FarmerID:            f.farmerID,
		Reference:           "ESC-1700000000-" + uuid.NewString()[:8],
		AmountPesewas:       10_925,
		PlatformFeePesewas:  425,
		SellerPayoutPesewas: 8_075,
		DeliveryFeePesewas:  2_000,
		Status:              enums.EscrowStatusHeld,
	}
	require.NoError(t, f.db.Create(&esc).Error)

	if opts.withItem {
		product := models.Product{
			ID:                uuid.New(),
			FarmerID:          f.farmerID,
			Name:              "Fresh Tomatoes",
			Unit:              "crate",
			UnitPricePesewas:  850,
			QuantityAvailable: 0,
			MinimumOrderQty:   1,
			Status:            enums.ProductStatusAvailable,
		}
		require.NoError(t, f.db.Create(&product).Error)
		require.NoError(t, f.db.Create(&models.OrderItem{
			ID:               uuid.New(),
			OrderID:          order.ID,
			ProductID:        product.ID,
			ProductName:      product.Name,
			Unit:             product.Unit,
			Quantity:         10,
			UnitPricePesewas: 850,
			LineTotalPesewas: 8_500,
		}).Error)
	}
	return &order
}

func (f *fixture) reloadOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return &order
}

func TestShipSetsCourierDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid})

	shipped, err := f.svc.Ship(context.Background(), ShipInput{
		OrderID:           order.ID,
		FarmerID:          f.farmerID,
		TrackingReference: "GH-TRK-0042",
		CourierName:       "Swift Couriers",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	require.NotNil(t, shipped.TrackingReference)
	assert.Equal(t, "GH-TRK-0042", *shipped.TrackingReference)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderShipped).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestShipRejectsWrongSeller(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid})

	_, err := f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, FarmerID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestShipRejectsPickupOrders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid, method: enums.DeliveryMethodPickup})

	_, err := f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, FarmerID: f.farmerID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestShipRejectsUnpaidOrders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPending})

	_, err := f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, FarmerID: f.farmerID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestConfirmDeliveryTriggersRelease(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusShipped})

	delivered, err := f.svc.ConfirmDelivery(context.Background(), order.ID, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	require.Len(t, f.releaser.calls, 1)
	assert.Equal(t, escrow.TriggerDeliveryConfirmation, f.releaser.calls[0].Trigger)
	assert.Equal(t, f.buyerID, f.releaser.calls[0].ActorID)
}

func TestConfirmDeliverySurvivesReleaseFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.releaser.err = pkgerrors.New(pkgerrors.CodeDependency, "transfer rejected by gateway")
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusShipped})

	delivered, err := f.svc.ConfirmDelivery(context.Background(), order.ID, f.buyerID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	assert.Len(t, f.releaser.calls, 1)
}

func TestConfirmDeliveryRejectsWrongBuyer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusShipped})

	_, err := f.svc.ConfirmDelivery(context.Background(), order.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
	assert.Empty(t, f.releaser.calls)
}

func TestConfirmPickupNeedsBothParties(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid, method: enums.DeliveryMethodPickup})
	ctx := context.Background()

	afterFarmer, err := f.svc.ConfirmPickup(ctx, order.ID, f.farmerID, enums.UserRoleFarmer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, afterFarmer.Status)
	assert.True(t, afterFarmer.FarmerPickupConfirm)
	assert.Empty(t, f.releaser.calls)

	afterBuyer, err := f.svc.ConfirmPickup(ctx, order.ID, f.buyerID, enums.UserRoleBuyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, afterBuyer.Status)
	require.Len(t, f.releaser.calls, 1)
	assert.Equal(t, escrow.TriggerDeliveryConfirmation, f.releaser.calls[0].Trigger)
}

func TestConfirmPickupRejectsDeliveryOrders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid})

	_, err := f.svc.ConfirmPickup(context.Background(), order.ID, f.buyerID, enums.UserRoleBuyer)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestCancelRestocksPendingOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPending, withItem: true})

	cancelled, err := f.svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		UserID:  f.buyerID,
		Role:    enums.UserRoleBuyer,
		Reason:  "found a closer seller",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var item models.OrderItem
	require.NoError(t, f.db.First(&item, "order_id = ?", order.ID).Error)
	var product models.Product
	require.NoError(t, f.db.First(&product, "id = ?", item.ProductID).Error)
	assert.Equal(t, int64(10), product.QuantityAvailable)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderCancelled).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCancelRejectsPaidOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid, withItem: true})

	_, err := f.svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID, UserID: f.buyerID, Role: enums.UserRoleBuyer,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Equal(t, enums.OrderStatusPaid, f.reloadOrder(t, order.ID).Status)
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPending, withItem: true})
	ctx := context.Background()
	input := CancelInput{OrderID: order.ID, UserID: f.buyerID, Role: enums.UserRoleBuyer}

	_, err := f.svc.Cancel(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, input)
	require.NoError(t, err)

	// Stock is returned exactly once.
	var item models.OrderItem
	require.NoError(t, f.db.First(&item, "order_id = ?", order.ID).Error)
	var product models.Product
	require.NoError(t, f.db.First(&product, "id = ?", item.ProductID).Error)
	assert.Equal(t, int64(10), product.QuantityAvailable)
}

func TestListScopesToCaller(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid})
	f.seedOrder(t, seedOpts{status: enums.OrderStatusShipped})

	// A different buyer's order must not appear.
	other := models.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-1700000001-" + uuid.NewString()[:6],
		BuyerID:        uuid.New(),
		FarmerID:       uuid.New(),
		Status:         enums.OrderStatusPaid,
		PaymentStatus:  enums.PaymentStatusPaid,
		TotalPesewas:   1_000,
		DeliveryMethod: enums.DeliveryMethodPickup,
	}
	require.NoError(t, f.db.Create(&other).Error)

	page, err := f.svc.List(context.Background(), ListInput{
		UserID: f.buyerID,
		Role:   enums.UserRoleBuyer,
		Params: pagination.Params{Page: 1, PageSize: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	for _, row := range page.Items {
		assert.Equal(t, f.buyerID, row.BuyerID)
	}

	status := enums.OrderStatusShipped
	filtered, err := f.svc.List(context.Background(), ListInput{
		UserID: f.buyerID,
		Role:   enums.UserRoleBuyer,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)
}

func TestGetHidesOrdersFromStrangers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPaid})

	_, err := f.svc.Get(context.Background(), order.ID, uuid.New(), enums.UserRoleBuyer)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	got, err := f.svc.Get(context.Background(), order.ID, f.farmerID, enums.UserRoleFarmer)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	asAdmin, err := f.svc.Get(context.Background(), order.ID, uuid.New(), enums.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, order.ID, asAdmin.ID)
}

// Guards against the seeded timestamps drifting in future edits.
func TestSeedOrderDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.seedOrder(t, seedOpts{status: enums.OrderStatusPending})
	assert.WithinDuration(t, time.Now(), f.reloadOrder(t, order.ID).CreatedAt, time.Minute)
}
