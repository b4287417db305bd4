package loyalty

import (
	"context"
	"strings"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/common"
)

type RewardForm struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Points      int64  `json:"points" validate:"gt=0"`
	Stock       int    `json:"stock"` // negative for unlimited
}

type CampaignForm struct {
	Name    string `json:"name" validate:"required,max=100"`
	Segment string `json:"segment" validate:"omitempty,oneof=all vip loyal regular new"`
	Message string `json:"message" validate:"required,max=1000"`
}

// ListAccounts returns the accounts of a segment, all of them for an empty segment
func (s *Service) ListAccounts(ctx context.Context, segment string) ([]domain.LoyaltyCustomer, error) {
	accts, err := resilient.Call(ctx, s.retry, "loyalty.list_accounts", resilient.Idempotent,
		func(ctx context.Context) ([]domain.LoyaltyCustomer, error) {
			return s.repo.ListAccounts(ctx)
		})
	if err != nil || segment == "" || segment == SegmentAll {
		return accts, err
	}
	out := accts[:0]
	for i := range accts {
		if Segment(&accts[i]) == segment {
			out = append(out, accts[i])
		}
	}
	return out, nil
}

func (s *Service) CreateReward(ctx context.Context, form *RewardForm) (*domain.LoyaltyReward, error) {
	if form.Points <= 0 {
		return nil, ErrInvalidPoints
	}
	reward := &domain.LoyaltyReward{
		ID:          common.UUIDint64(),
		Name:        strings.TrimSpace(form.Name),
		Description: strings.TrimSpace(form.Description),
		Points:      form.Points,
		Stock:       form.Stock,
		Status:      common.ENABLED,
	}
	err := s.retry.Do(ctx, "loyalty.create_reward", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.SaveReward(ctx, reward)
	})
	return reward, err
}

func (s *Service) Campaigns(ctx context.Context) ([]domain.Campaign, error) {
	return resilient.Call(ctx, s.retry, "loyalty.campaigns", resilient.Idempotent,
		func(ctx context.Context) ([]domain.Campaign, error) {
			return s.repo.ListCampaigns(ctx)
		})
}

// CreateCampaign stores a draft campaign, SendCampaign delivers it
func (s *Service) CreateCampaign(ctx context.Context, form *CampaignForm) (*domain.Campaign, error) {
	campaign := &domain.Campaign{
		ID:      common.UUIDint64(),
		Name:    strings.TrimSpace(form.Name),
		Segment: common.IfEmptyStr(form.Segment, SegmentAll),
		Message: strings.TrimSpace(form.Message),
		Status:  "draft",
	}
	err := s.retry.Do(ctx, "loyalty.create_campaign", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.SaveCampaign(ctx, campaign)
	})
	return campaign, err
}
