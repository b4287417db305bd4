package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/testutil"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Service, *gorm.DB, *events.Bus) {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Create(&domain.Supplier{ID: 1, Code: "ACME", Name: "Acme Supply"}).Error)
	require.NoError(t, db.Create(&domain.Product{ID: 100, Name: "Beans", StockQuantity: 5, CostPrice: decimal.NewFromInt(8)}).Error)
	require.NoError(t, db.Create(&domain.Product{ID: 200, Name: "Cups", HasVariants: true}).Error)
	require.NoError(t, db.Create(&domain.ProductVariant{ID: 201, ProductID: 200, Name: "Large", StockQuantity: 1}).Error)

	bus := events.NewBus()
	svc := NewService(NewGormRepository(db), nil, bus)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC) }
	return svc, db, bus
}

func orderForm() *OrderForm {
	return &OrderForm{
		SupplierID:   1,
		Currency:     "eur",
		ExchangeRate: decimal.RequireFromString("1.5"),
		Items: []ItemForm{
			{ProductID: 100, Quantity: 10, CostPrice: decimal.NewFromInt(10)},
			{ProductID: 200, VariantID: 201, Quantity: 4, CostPrice: decimal.RequireFromString("2.25")},
		},
	}
}

func TestCreate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	po, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)
	assert.Equal(t, "PO-20260504-0001", po.OrderNumber)
	assert.Equal(t, "EUR", po.Currency)
	assert.Equal(t, string(StatusDraft), po.Status)
	assert.True(t, po.TotalAmount.Equal(decimal.NewFromInt(109)), po.TotalAmount.String())

	po2, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)
	assert.Equal(t, "PO-20260504-0002", po2.OrderNumber)

	got, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.NoError(t, CheckTotal(got))

	evs, err := svc.Events(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "draft", evs[0].ToStatus)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	f := orderForm()
	f.Currency = "XYZ1"
	_, err := svc.Create(ctx, f)
	assert.ErrorContains(t, err, "invalid currency")

	f = orderForm()
	f.ExchangeRate = decimal.NewFromInt(-1)
	_, err = svc.Create(ctx, f)
	assert.ErrorIs(t, err, ErrInvalidRate)

	f = orderForm()
	f.Items = nil
	_, err = svc.Create(ctx, f)
	assert.ErrorIs(t, err, ErrNoItems)

	f = orderForm()
	f.SupplierID = 9
	_, err = svc.Create(ctx, f)
	assert.ErrorIs(t, err, ErrSupplierNotFound)

	f = orderForm()
	f.Items[0].Quantity = 0
	_, err = svc.Create(ctx, f)
	assert.Error(t, err)
}

func TestUpdateOnlyInDraft(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	po, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)

	f := orderForm()
	f.Items = f.Items[:1]
	f.Notes = "rush"
	updated, err := svc.Update(ctx, po.ID, f)
	require.NoError(t, err)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(100)))

	got, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "rush", got.Notes)

	_, err = svc.Send(ctx, po.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, po.ID, f)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestReceivePartial(t *testing.T) {
	svc, db, bus := setup(t)
	ctx := context.Background()

	var got events.PurchaseReceived
	require.NoError(t, bus.Subscribe(events.TopicPurchaseReceived, func(ev events.PurchaseReceived) { got = ev }))

	po, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)

	_, err = svc.Receive(ctx, po.ID, nil)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)

	_, err = svc.Send(ctx, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, po.ID, map[int64]int{po.Items[0].ID: 11})
	assert.ErrorContains(t, err, "exceeds ordered")

	received, err := svc.Receive(ctx, po.ID, map[int64]int{po.Items[0].ID: 6})
	require.NoError(t, err)
	assert.Equal(t, string(StatusReceived), received.Status)
	assert.NotNil(t, received.ReceivedAt)

	var beans domain.Product
	require.NoError(t, db.First(&beans, 100).Error)
	assert.Equal(t, 11, beans.StockQuantity)
	assert.True(t, beans.CostPrice.Equal(decimal.NewFromInt(15)), beans.CostPrice.String())

	var large domain.ProductVariant
	require.NoError(t, db.First(&large, 201).Error)
	assert.Equal(t, 5, large.StockQuantity)
	assert.True(t, large.CostPrice.Equal(decimal.RequireFromString("3.38")), large.CostPrice.String())

	assert.Equal(t, po.ID, got.PurchaseOrderID)
	assert.Len(t, got.Lines, 2)

	_, err = svc.Cancel(ctx, po.ID, "too late")
	assert.ErrorAs(t, err, &terr)
}

func TestShippingPath(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	po, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)
	_, err = svc.Send(ctx, po.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, po.ID)
	require.NoError(t, err)

	_, err = svc.UpdateShippingStatus(ctx, po.ID, "received")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)

	eta := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	shipped, err := svc.AssignShipping(ctx, po.ID, &ShippingForm{
		Carrier: "DHL", Agent: "Jo", Cost: decimal.NewFromInt(30), TrackingNumber: "TRK1", EstimatedArrival: &eta,
	})
	require.NoError(t, err)
	assert.Equal(t, string(StatusShipping), shipped.Status)

	_, err = svc.Receive(ctx, po.ID, nil)
	require.ErrorAs(t, err, &terr)

	_, err = svc.UpdateShippingStatus(ctx, po.ID, "shipped")
	require.NoError(t, err)
	done, err := svc.UpdateShippingStatus(ctx, po.ID, "received")
	require.NoError(t, err)
	assert.Equal(t, string(StatusReceived), done.Status)

	got, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Shipping)
	assert.Equal(t, "TRK1", got.Shipping.TrackingNumber)
	for _, it := range got.Items {
		assert.Equal(t, it.Quantity, it.ReceivedQuantity)
	}

	var beans domain.Product
	require.NoError(t, db.First(&beans, 100).Error)
	assert.Equal(t, 15, beans.StockQuantity)

	evs, err := svc.Events(ctx, po.ID)
	require.NoError(t, err)
	var path []string
	for _, ev := range evs {
		path = append(path, ev.ToStatus)
	}
	assert.Equal(t, []string{"draft", "sent", "confirmed", "shipping", "shipped", "received"}, path)
}

func TestCancel(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	po, err := svc.Create(ctx, orderForm())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, po.ID, "supplier out of stock")
	require.NoError(t, err)
	assert.Equal(t, string(StatusCancelled), cancelled.Status)
	assert.Equal(t, "supplier out of stock", cancelled.CancelReason)

	_, err = svc.Send(ctx, po.ID)
	var terr *TransitionError
	assert.ErrorAs(t, err, &terr)

	_, err = svc.Get(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
