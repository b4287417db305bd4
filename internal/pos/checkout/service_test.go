package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/localstore"
	"github.com/talkincode/toughpos/internal/loyalty"
	"github.com/talkincode/toughpos/internal/pos/cart"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/internal/testutil"
	"gorm.io/gorm"
)

var receiptPattern = regexp.MustCompile(`^R-\d{8}-[0-9A-F]{6}$`)

var fastRetry = resilient.NewClient(resilient.Policy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
})

type fixture struct {
	db      *gorm.DB
	svc     *Service
	bus     *events.Bus
	drafts  *localstore.Store
	loyalty *loyalty.Service
	store   *flakyStore
	beans   *domain.Product
	mug     *domain.Product
	large   *domain.ProductVariant
}

// flakyStore fails the first failures calls to CreateSale with err.
// With staleKeys set, GetByKey misses as if another till committed the key meanwhile.
type flakyStore struct {
	SaleStore
	failures  int
	err       error
	calls     int
	staleKeys bool
}

func (f *flakyStore) GetByKey(ctx context.Context, key string) (*domain.Sale, error) {
	if f.staleKeys {
		return nil, nil
	}
	return f.SaleStore.GetByKey(ctx, key)
}

func (f *flakyStore) CreateSale(ctx context.Context, sale *domain.Sale) (*domain.Sale, bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, false, f.err
	}
	return f.SaleStore.CreateSale(ctx, sale)
}

type failingLoyalty struct {
	Loyalty
}

func (failingLoyalty) Earn(context.Context, int64, decimal.Decimal, string) (int64, error) {
	return 0, errors.New("loyalty backend down")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Create(&[]domain.SysOpr{
		{ID: 1, Username: "cashier", Level: domain.OprLevelCashier, Status: "enabled"},
		{ID: 2, Username: "clerk", Level: domain.OprLevelClerk, Status: "enabled"},
		{ID: 3, Username: "gone", Level: domain.OprLevelCashier, Status: "disabled"},
	}).Error)

	f := &fixture{db: db}
	f.beans = &domain.Product{ID: 100, Name: "Beans", Sku: "BEAN", SellingPrice: money("5000"), StockQuantity: 10}
	f.mug = &domain.Product{ID: 200, Name: "Mug", HasVariants: true}
	f.large = &domain.ProductVariant{ID: 201, ProductID: 200, Name: "Large", Sku: "MUG-L", SellingPrice: money("3000"), StockQuantity: 2}
	require.NoError(t, db.Create(f.beans).Error)
	require.NoError(t, db.Create(f.mug).Error)
	require.NoError(t, db.Create(f.large).Error)
	require.NoError(t, db.Create(&domain.Customer{ID: 9, Name: "Ana", Email: "ana@example.com"}).Error)

	drafts, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drafts.Close() })
	f.drafts = drafts

	f.bus = events.NewBus()
	f.loyalty = loyalty.NewService(loyalty.NewGormRepository(db), fastRetry, nil, loyalty.Settings{})
	f.store = &flakyStore{SaleStore: NewGormSaleStore(db)}
	f.svc = NewService(f.store, NewGormPermissionChecker(db),
		WithRetry(fastRetry),
		WithEventBus(f.bus),
		WithLoyalty(f.loyalty),
		WithDrafts(drafts),
	)
	return f
}

// session holds 2 x Beans and 1 x Mug Large with a 10% discount: 13000 - 1300 = 11700
func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	sess := NewSession(1)
	_, err := sess.Cart.Add(f.beans, nil)
	require.NoError(t, err)
	_, err = sess.Cart.Add(f.beans, nil)
	require.NoError(t, err)
	_, err = sess.Cart.Add(f.mug, f.large)
	require.NoError(t, err)
	require.NoError(t, sess.Cart.SetDiscount(cart.Discount{Type: cart.DiscountPercentage, Value: money("10")}))
	return sess
}

func (f *fixture) stock(t *testing.T, id int64) int {
	var p domain.Product
	require.NoError(t, f.db.First(&p, id).Error)
	return p.StockQuantity
}

func cash(amount string) Request {
	return Request{Payments: []Payment{{Method: "cash", Amount: money(amount)}}}
}

func TestCheckoutSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var completed events.SaleCompleted
	require.NoError(t, f.bus.Subscribe(events.TopicSaleCompleted, func(ev events.SaleCompleted) { completed = ev }))

	sess := f.session(t)
	sess.CustomerID = 9
	require.NoError(t, f.svc.SaveDraft(sess))

	res, err := f.svc.Checkout(ctx, sess, cash("12000"))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.Replayed)
	assert.Regexp(t, receiptPattern, res.ReceiptNo)
	assert.True(t, res.Change.Equal(money("300")))
	assert.True(t, res.Sale.TotalAmount.Equal(money("11700")))
	assert.Equal(t, domain.PaymentCash, res.Sale.PaymentMethod)
	assert.Equal(t, int64(117), res.Sale.PointsEarned)

	assert.True(t, sess.Cart.IsEmpty())
	assert.Nil(t, sess.Cart.Discount())
	assert.Zero(t, sess.CustomerID)

	assert.Equal(t, 8, f.stock(t, 100))
	var large domain.ProductVariant
	require.NoError(t, f.db.First(&large, 201).Error)
	assert.Equal(t, 1, large.StockQuantity)

	stored, err := f.svc.GetByReceipt(ctx, res.ReceiptNo)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Len(t, stored.Payments, 1)
	assert.Equal(t, int64(117), stored.PointsEarned)

	acct, err := f.loyalty.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(117), acct.Points)

	assert.Equal(t, res.Sale.ID, completed.SaleID)
	assert.Len(t, completed.Lines, 2)

	_, found, err := f.svc.LoadDraft(1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckoutPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, NewSession(1), cash("1"))
	assert.ErrorIs(t, err, ErrEmptyCart)

	free := f.session(t)
	require.NoError(t, free.Cart.SetDiscount(cart.Discount{Type: cart.DiscountPercentage, Value: money("100")}))
	_, err = f.svc.Checkout(ctx, free, cash("1"))
	assert.ErrorIs(t, err, ErrZeroAmount)

	for _, opr := range []int64{2, 3, 404} {
		sess := f.session(t)
		sess.OperatorID = opr
		_, err = f.svc.Checkout(ctx, sess, cash("12000"))
		assert.ErrorIs(t, err, ErrPermissionDenied, "operator %d", opr)
	}
	assert.Zero(t, f.store.calls)
}

func TestCheckoutPaymentMismatchKeepsCart(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	sess.CustomerID = 9

	_, err := f.svc.Checkout(context.Background(), sess, cash("11000"))
	var mismatch *PaymentMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Len(t, sess.Cart.Items(), 2)
	assert.Equal(t, int64(9), sess.CustomerID)
	assert.Zero(t, f.store.calls)
	assert.Equal(t, 10, f.stock(t, 100))
}

func TestCheckoutRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failures = 2
	f.store.err = resilient.Transient(errors.New("connection reset"))

	res, err := f.svc.Checkout(context.Background(), f.session(t), cash("11700"))
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.calls)
	assert.True(t, res.Change.IsZero())
	assert.Equal(t, 8, f.stock(t, 100))
}

func TestCheckoutTerminalFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.store.failures = 10
	f.store.err = resilient.Transient(errors.New("connection reset"))

	sess := f.session(t)
	_, err := f.svc.Checkout(context.Background(), sess, cash("11700"))
	require.Error(t, err)
	assert.Equal(t, 3, f.store.calls)
	assert.Len(t, sess.Cart.Items(), 2)
	assert.True(t, sess.Cart.Subtotal().Equal(money("13000")))
	key := sess.PendingKey
	assert.NotEmpty(t, key)

	f.store.failures = 0
	res, err := f.svc.Checkout(context.Background(), sess, cash("11700"))
	require.NoError(t, err)
	assert.Equal(t, key, res.Sale.IdempotencyKey)
}

func TestCheckoutPermanentFailureNotRetried(t *testing.T) {
	f := newFixture(t)
	f.store.failures = 10
	f.store.err = errors.New("constraint violated")

	_, err := f.svc.Checkout(context.Background(), f.session(t), cash("11700"))
	require.Error(t, err)
	assert.Equal(t, 1, f.store.calls)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := cash("11700")
	req.IdempotencyKey = "till-1-0001"
	first, err := f.svc.Checkout(ctx, f.session(t), req)
	require.NoError(t, err)

	second, err := f.svc.Checkout(ctx, f.session(t), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)
	assert.Equal(t, first.ReceiptNo, second.ReceiptNo)
	assert.Equal(t, 8, f.stock(t, 100))

	var count int64
	f.db.Model(&domain.Sale{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCheckoutStockCheck(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	require.NoError(t, f.db.Model(&domain.ProductVariant{}).Where("id = ?", 201).Update("stock_quantity", 0).Error)

	_, err := f.svc.Checkout(context.Background(), sess, cash("11700"))
	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "MUG-L", stockErr.Sku)
	assert.Equal(t, 10, f.stock(t, 100))
	assert.False(t, sess.Cart.IsEmpty())
}

func TestCheckoutLoyaltyFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.svc.loyalty = failingLoyalty{f.loyalty}
	sess := f.session(t)
	sess.CustomerID = 9

	res, err := f.svc.Checkout(context.Background(), sess, cash("11700"))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "loyalty backend down")
	assert.True(t, sess.Cart.IsEmpty())
}

func TestCheckoutWithPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.loyalty.Adjust(ctx, 9, 500, "seed")
	require.NoError(t, err)

	sess := f.session(t)
	sess.CustomerID = 9
	req := Request{Payments: []Payment{{Method: "points", Amount: money("200")}, {Method: "card", Amount: money("11500")}}}
	res, err := f.svc.Checkout(ctx, sess, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSplit, res.Sale.PaymentMethod)

	acct, err := f.loyalty.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(500-200+117), acct.Points)

	walkIn := f.session(t)
	_, err = f.svc.Checkout(ctx, walkIn, req)
	assert.ErrorIs(t, err, ErrCustomerRequired)
}

func TestCheckoutWithPointsReplay(t *testing.T) {
	tests := []struct {
		name      string
		staleKeys bool
	}{
		{"committed key", false},
		{"key committed during submit", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, err := f.loyalty.Adjust(ctx, 9, 500, "seed")
			require.NoError(t, err)

			req := Request{
				IdempotencyKey: "k-1",
				Payments:       []Payment{{Method: "points", Amount: money("200")}, {Method: "card", Amount: money("11500")}},
			}
			sess := f.session(t)
			sess.CustomerID = 9
			first, err := f.svc.Checkout(ctx, sess, req)
			require.NoError(t, err)

			f.store.staleKeys = tt.staleKeys
			retry := f.session(t)
			retry.CustomerID = 9
			second, err := f.svc.Checkout(ctx, retry, req)
			require.NoError(t, err)
			assert.True(t, second.Replayed)
			assert.Equal(t, first.Sale.ID, second.Sale.ID)
			assert.True(t, retry.Cart.IsEmpty())

			acct, err := f.loyalty.GetAccount(ctx, 9)
			require.NoError(t, err)
			assert.Equal(t, int64(500-200+117), acct.Points)
			assert.Equal(t, 8, f.stock(t, 100))
		})
	}
}

func TestCheckoutWithPointsRestoredOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.loyalty.Adjust(ctx, 9, 500, "seed")
	require.NoError(t, err)
	f.store.failures = 1
	f.store.err = errors.New("disk full")

	sess := f.session(t)
	sess.CustomerID = 9
	req := Request{Payments: []Payment{{Method: "points", Amount: money("200")}, {Method: "card", Amount: money("11500")}}}
	_, err = f.svc.Checkout(ctx, sess, req)
	require.Error(t, err)

	acct, err := f.loyalty.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.Points)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.loyalty.Subscribe(f.bus))

	sess := f.session(t)
	sess.CustomerID = 9
	res, err := f.svc.Checkout(ctx, sess, cash("11700"))
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, 2, res.Sale.ID, "damaged")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	refunded, err := f.svc.Refund(ctx, 1, res.Sale.ID, "damaged")
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	f.bus.Wait()

	assert.Equal(t, 10, f.stock(t, 100))
	acct, err := f.loyalty.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, acct.Points)

	_, err = f.svc.Refund(ctx, 1, res.Sale.ID, "again")
	assert.ErrorIs(t, err, ErrNotRefundable)
	_, err = f.svc.Refund(ctx, 1, 12345, "missing")
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	f.svc.SetOptions(Options{TaxRate: money("10")})
	sess := f.session(t)

	q, err := f.svc.Quote(sess, nil)
	require.NoError(t, err)
	assert.True(t, q.Totals.Final.Equal(money("11700")))
	assert.True(t, q.Totals.Tax.Equal(money("1170")))
	assert.True(t, q.Totals.Total.Equal(money("12870")))
	assert.Nil(t, q.Settlement)

	q, err = f.svc.Quote(sess, []Payment{{Method: "cash", Amount: money("13000")}})
	require.NoError(t, err)
	assert.True(t, q.Settlement.Change.Equal(money("130")))
}

func TestDrafts(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	sess.CustomerID = 9
	require.NoError(t, f.svc.SaveDraft(sess))

	loaded, found, err := f.svc.LoadDraft(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(9), loaded.CustomerID)
	assert.Len(t, loaded.Cart.Items(), 2)
	assert.True(t, loaded.Cart.Totals(money("0")).Final.Equal(money("11700")))

	require.NoError(t, f.svc.DiscardDraft(1))
	_, found, err = f.svc.LoadDraft(1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBuildSession(t *testing.T) {
	f := newFixture(t)
	lookup := gormLookup{f.db}

	sess, err := BuildSession(context.Background(), lookup, 1, 9, []Line{
		{ProductID: 100, Quantity: 3},
		{ProductID: 200, VariantID: 201, Quantity: 1},
	}, &cart.Discount{Type: cart.DiscountFixed, Value: money("1000")})
	require.NoError(t, err)
	assert.True(t, sess.Cart.Subtotal().Equal(money("18000")))
	assert.True(t, sess.Cart.Totals(decimal.Zero).Final.Equal(money("17000")))

	_, err = BuildSession(context.Background(), lookup, 1, 0, []Line{{ProductID: 200, VariantID: 201, Quantity: 3}}, nil)
	assert.ErrorIs(t, err, cart.ErrInsufficientStock)

	_, err = BuildSession(context.Background(), lookup, 1, 0, []Line{{ProductID: 200, Quantity: 1}}, nil)
	assert.ErrorIs(t, err, cart.ErrVariantRequired)
}

type gormLookup struct{ db *gorm.DB }

func (l gormLookup) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	return &p, l.db.WithContext(ctx).First(&p, id).Error
}

func (l gormLookup) GetVariant(ctx context.Context, id int64) (*domain.ProductVariant, error) {
	var v domain.ProductVariant
	return &v, l.db.WithContext(ctx).First(&v, id).Error
}
