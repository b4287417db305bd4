package loyalty

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAccountsBySegment(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, 1, decimal.NewFromInt(200000), "R-1")
	require.NoError(t, err)
	_, err = svc.Earn(ctx, 2, decimal.NewFromInt(500), "R-2")
	require.NoError(t, err)
	_, err = svc.Earn(ctx, 2, decimal.NewFromInt(500), "R-3")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, 3)
	require.NoError(t, err)

	all, err := svc.ListAccounts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	vip, err := svc.ListAccounts(ctx, SegmentVIP)
	require.NoError(t, err)
	require.Len(t, vip, 1)
	assert.Equal(t, int64(1), vip[0].CustomerID)

	regular, err := svc.ListAccounts(ctx, SegmentRegular)
	require.NoError(t, err)
	require.Len(t, regular, 1)
	assert.Equal(t, int64(2), regular[0].CustomerID)

	fresh, err := svc.ListAccounts(ctx, SegmentNew)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(3), fresh[0].CustomerID)
}

func TestCreateRewardAndCampaign(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateReward(ctx, &RewardForm{Name: "Mug", Points: 0})
	assert.ErrorIs(t, err, ErrInvalidPoints)

	reward, err := svc.CreateReward(ctx, &RewardForm{Name: " Mug ", Points: 300, Stock: -1})
	require.NoError(t, err)
	assert.Equal(t, "Mug", reward.Name)

	rewards, err := svc.Rewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, reward.ID, rewards[0].ID)

	campaign, err := svc.CreateCampaign(ctx, &CampaignForm{Name: "Spring", Message: "20% off"})
	require.NoError(t, err)
	assert.Equal(t, SegmentAll, campaign.Segment)
	assert.Equal(t, "draft", campaign.Status)

	campaigns, err := svc.Campaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
}
