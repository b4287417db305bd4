package loyalty

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/notify"
	"github.com/talkincode/toughpos/internal/testutil"
	"github.com/talkincode/toughpos/pkg/common"
	"gorm.io/gorm"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMessenger) Send(_ context.Context, recipient, _ string) notify.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.HasPrefix(recipient, "fail") {
		return notify.Result{Error: "gateway rejected"}
	}
	m.sent = append(m.sent, recipient)
	return notify.Result{Success: true}
}

func setup(t *testing.T) (*Service, *gorm.DB, *fakeMessenger) {
	t.Helper()
	db := testutil.NewTestDB(t)
	m := &fakeMessenger{}
	svc := NewService(NewGormRepository(db), nil, m, Settings{})
	return svc, db, m
}

func ledgerSum(t *testing.T, db *gorm.DB, customerID int64) int64 {
	var sum int64
	require.NoError(t, db.Model(&domain.PointTransaction{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(points), 0)").Scan(&sum).Error)
	return sum
}

func TestEarn(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	points, err := svc.Earn(ctx, 1, decimal.NewFromInt(11700), "R-1")
	require.NoError(t, err)
	assert.Equal(t, int64(117), points)

	points, err = svc.Earn(ctx, 1, decimal.NewFromInt(11700), "R-1")
	require.NoError(t, err)
	assert.Equal(t, int64(117), points)

	_, err = svc.Earn(ctx, 1, decimal.NewFromInt(20000), "R-2")
	require.NoError(t, err)

	acct, err := svc.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(317), acct.Points)
	assert.Equal(t, 2, acct.Orders)
	assert.True(t, acct.TotalSpent.Equal(decimal.NewFromInt(31700)))
	assert.Equal(t, TierSilver, acct.Tier)
	assert.Equal(t, acct.Points, ledgerSum(t, db, 1))
}

func TestRedeem(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Earn(ctx, 1, decimal.NewFromInt(5000), "R-1")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, 1, 80, "R-2")
	assert.EqualError(t, err, "insufficient points: have 50, need 80")

	acct, err := svc.Redeem(ctx, 1, 30, "R-2")
	require.NoError(t, err)
	assert.Equal(t, int64(20), acct.Points)
	assert.Equal(t, int64(20), ledgerSum(t, db, 1))

	_, err = svc.Redeem(ctx, 1, 0, "")
	assert.ErrorIs(t, err, ErrInvalidPoints)
	_, err = svc.Redeem(ctx, 404, 1, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAdjust(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	acct, err := svc.Adjust(ctx, 3, 600, "welcome bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(600), acct.Points)
	assert.Equal(t, TierSilver, acct.Tier)

	_, err = svc.Adjust(ctx, 3, -601, "oops")
	assert.ErrorIs(t, err, ErrNegativeBalance)

	acct, err = svc.Adjust(ctx, 3, -600, "correction")
	require.NoError(t, err)
	assert.Zero(t, acct.Points)
	assert.Equal(t, TierBronze, acct.Tier)
	assert.Zero(t, ledgerSum(t, db, 3))
}

func TestRedeemReward(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Adjust(ctx, 1, 300, "seed")
	require.NoError(t, err)

	mug := domain.LoyaltyReward{ID: 10, Name: "Mug", Points: 250, Stock: 1, Status: common.ENABLED}
	tote := domain.LoyaltyReward{ID: 11, Name: "Tote", Points: 400, Stock: -1, Status: common.ENABLED}
	old := domain.LoyaltyReward{ID: 12, Name: "Old", Points: 10, Stock: -1, Status: common.DISABLED}
	require.NoError(t, db.Create(&[]domain.LoyaltyReward{mug, tote, old}).Error)

	_, err = svc.RedeemReward(ctx, 1, 11)
	var insufficient *InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(300), insufficient.Have)

	_, err = svc.RedeemReward(ctx, 1, 12)
	assert.ErrorIs(t, err, ErrRewardInactive)

	red, err := svc.RedeemReward(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(250), red.Points)

	acct, err := svc.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Points)

	var reward domain.LoyaltyReward
	require.NoError(t, db.First(&reward, 10).Error)
	assert.Zero(t, reward.Stock)

	_, err = svc.Adjust(ctx, 1, 500, "top up")
	require.NoError(t, err)
	_, err = svc.RedeemReward(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrRewardSoldOut)

	_, err = svc.RedeemReward(ctx, 1, 99)
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func TestReconcile(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	_, err := svc.Earn(ctx, 1, decimal.NewFromInt(60000), "R-1")
	require.NoError(t, err)

	changed, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, db.Model(&domain.LoyaltyCustomer{}).
		Where("customer_id = ?", 1).
		Updates(map[string]interface{}{"points": 9999, "tier": TierPlatinum}).Error)

	fixed, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	acct, err := svc.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(600), acct.Points)
	assert.Equal(t, TierSilver, acct.Tier)
}

func TestRefundEventReversesPoints(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	bus := events.NewBus()
	require.NoError(t, svc.Subscribe(bus))

	_, err := svc.Earn(ctx, 1, decimal.NewFromInt(10000), "R-1")
	require.NoError(t, err)

	bus.Publish(events.TopicSaleRefunded, events.SaleRefunded{SaleID: 5, CustomerID: 1, PointsEarned: 100})
	bus.Wait()

	acct, err := svc.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acct.Points)
	assert.Zero(t, ledgerSum(t, db, 1))

	taken, err := svc.Reverse(ctx, 1, 100, "refund:5")
	require.NoError(t, err)
	assert.Equal(t, int64(100), taken)
	assert.Zero(t, ledgerSum(t, db, 1))
}

func TestSendCampaign(t *testing.T) {
	svc, db, m := setup(t)
	ctx := context.Background()

	customers := []domain.Customer{
		{ID: 1, Name: "Ana", Email: "ana@example.com"},
		{ID: 2, Name: "Ben", Mobile: "+15550001"},
		{ID: 3, Name: "Cy", Mobile: "fail-1"},
		{ID: 4, Name: "Di"},
	}
	require.NoError(t, db.Create(&customers).Error)
	for _, c := range customers {
		_, err := svc.Adjust(ctx, c.ID, 2500, "seed")
		require.NoError(t, err)
	}
	_, err := svc.Enroll(ctx, 5)
	require.NoError(t, err)

	campaign := domain.Campaign{ID: 77, Name: "Gold week", Segment: SegmentLoyal, Message: "Double points", Status: "draft"}
	require.NoError(t, db.Create(&campaign).Error)

	got, err := svc.SendCampaign(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "sent", got.Status)
	assert.Equal(t, 2, got.SentCount)
	assert.Equal(t, 2, got.FailedCount)
	assert.ElementsMatch(t, []string{"ana@example.com", "+15550001"}, m.sent)

	_, err = svc.SendCampaign(ctx, 77)
	assert.ErrorIs(t, err, ErrCampaignSent)
}
