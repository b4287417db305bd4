package loyalty

import (
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
)

const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

const (
	SegmentAll     = "all"
	SegmentVIP     = "vip"
	SegmentLoyal   = "loyal"
	SegmentRegular = "regular"
	SegmentNew     = "new"
)

// Threshold is reached when either the points or the spend minimum is met
type Threshold struct {
	Tier   string          `json:"tier"`
	Points int64           `json:"points"`
	Spend  decimal.Decimal `json:"spend"`
}

// Thresholds ordered from lowest to highest tier
type Thresholds []Threshold

var DefaultThresholds = Thresholds{
	{Tier: TierSilver, Points: 500, Spend: decimal.NewFromInt(25000)},
	{Tier: TierGold, Points: 2000, Spend: decimal.NewFromInt(75000)},
	{Tier: TierPlatinum, Points: 5000, Spend: decimal.NewFromInt(150000)},
}

var vipSpend = decimal.NewFromInt(100000)

// TierFor returns the highest tier whose points or spend threshold is met
func TierFor(points int64, totalSpent decimal.Decimal, thresholds Thresholds) string {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	tier := TierBronze
	for _, t := range thresholds {
		if points >= t.Points || totalSpent.GreaterThanOrEqual(t.Spend) {
			tier = t.Tier
		}
	}
	return tier
}

// Segment classifies a customer for campaign targeting
func Segment(c *domain.LoyaltyCustomer) string {
	switch {
	case c.Tier == TierPlatinum && c.TotalSpent.GreaterThan(vipSpend):
		return SegmentVIP
	case c.Tier == TierGold || c.Tier == TierPlatinum:
		return SegmentLoyal
	case c.Orders >= 2:
		return SegmentRegular
	default:
		return SegmentNew
	}
}

// PointsFor converts a sale amount to earned points, rounding down
func PointsFor(amount decimal.Decimal, perUnit int64) int64 {
	if perUnit <= 0 || !amount.IsPositive() {
		return 0
	}
	return amount.Div(decimal.NewFromInt(perUnit)).Floor().IntPart()
}
