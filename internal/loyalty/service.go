package loyalty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/notify"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
)

var (
	ErrInvalidPoints   = errors.New("points must be greater than 0")
	ErrRewardInactive  = errors.New("reward is not active")
	ErrRewardSoldOut   = errors.New("reward is out of stock")
	ErrNegativeBalance = errors.New("adjustment would make the balance negative")
	ErrCampaignSent    = errors.New("campaign already sent")
)

// InsufficientPointsError is returned when a deduction exceeds the balance
type InsufficientPointsError struct {
	Have int64
	Need int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: have %d, need %d", e.Have, e.Need)
}

// Settings loyalty program parameters
type Settings struct {
	PointsPerUnit int64
	Thresholds    Thresholds
	Workers       int
}

func (s Settings) withDefaults() Settings {
	if s.PointsPerUnit <= 0 {
		s.PointsPerUnit = 100
	}
	if len(s.Thresholds) == 0 {
		s.Thresholds = DefaultThresholds
	}
	if s.Workers <= 0 {
		s.Workers = 8
	}
	return s
}

type Service struct {
	repo      Repository
	retry     *resilient.Client
	messenger notify.Messenger
	settings  Settings
	now       func() time.Time
}

func NewService(repo Repository, retry *resilient.Client, messenger notify.Messenger, settings Settings) *Service {
	if retry == nil {
		retry = resilient.NewClient(resilient.DefaultPolicy)
	}
	return &Service{
		repo:      repo,
		retry:     retry,
		messenger: messenger,
		settings:  settings.withDefaults(),
		now:       time.Now,
	}
}

func (s *Service) Settings() Settings {
	return s.settings
}

// Subscribe reverses earned points when a sale is refunded
func (s *Service) Subscribe(bus *events.Bus) error {
	return bus.SubscribeAsync(events.TopicSaleRefunded, s.onSaleRefunded)
}

func (s *Service) onSaleRefunded(ev events.SaleRefunded) {
	if ev.CustomerID == 0 || ev.PointsEarned <= 0 {
		return
	}
	ref := fmt.Sprintf("refund:%d", ev.SaleID)
	if _, err := s.Reverse(context.Background(), ev.CustomerID, ev.PointsEarned, ref); err != nil {
		zap.L().Error("reverse refunded points failed",
			zap.Int64("sale_id", ev.SaleID),
			zap.Int64("customer_id", ev.CustomerID),
			zap.Error(err),
			zap.String("namespace", "loyalty"))
	}
}

func (s *Service) GetAccount(ctx context.Context, customerID int64) (*domain.LoyaltyCustomer, error) {
	return resilient.Call(ctx, s.retry, "loyalty.get_account", resilient.Idempotent,
		func(ctx context.Context) (*domain.LoyaltyCustomer, error) {
			return s.repo.GetAccount(ctx, customerID, false)
		})
}

func (s *Service) History(ctx context.Context, customerID int64, limit int) ([]domain.PointTransaction, error) {
	return resilient.Call(ctx, s.retry, "loyalty.history", resilient.Idempotent,
		func(ctx context.Context) ([]domain.PointTransaction, error) {
			return s.repo.ListTransactions(ctx, customerID, limit)
		})
}

func (s *Service) Rewards(ctx context.Context) ([]domain.LoyaltyReward, error) {
	return resilient.Call(ctx, s.retry, "loyalty.rewards", resilient.Idempotent,
		func(ctx context.Context) ([]domain.LoyaltyReward, error) {
			return s.repo.ListRewards(ctx)
		})
}

// Enroll opens an account for the customer if there is none yet
func (s *Service) Enroll(ctx context.Context, customerID int64) (*domain.LoyaltyCustomer, error) {
	var acct *domain.LoyaltyCustomer
	err := s.retry.Do(ctx, "loyalty.enroll", resilient.Idempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			var err error
			acct, err = s.account(ctx, repo, customerID)
			return err
		})
	})
	return acct, err
}

// account loads the customer's account, creating it on first use
func (s *Service) account(ctx context.Context, repo Repository, customerID int64) (*domain.LoyaltyCustomer, error) {
	acct, err := repo.GetAccount(ctx, customerID, true)
	if !errors.Is(err, ErrAccountNotFound) {
		return acct, err
	}
	now := s.now()
	acct = &domain.LoyaltyCustomer{
		ID:         common.UUIDint64(),
		CustomerID: customerID,
		Tier:       TierBronze,
		TotalSpent: decimal.Zero,
		Status:     common.ENABLED,
		JoinedAt:   now,
	}
	if err := repo.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) record(ctx context.Context, repo Repository, acct *domain.LoyaltyCustomer, typ string, points int64, ref, note string) error {
	acct.Points += points
	acct.Tier = TierFor(acct.Points, acct.TotalSpent, s.settings.Thresholds)
	txn := &domain.PointTransaction{
		ID:         common.UUIDint64(),
		CustomerID: acct.CustomerID,
		Type:       typ,
		Points:     points,
		Reference:  ref,
		Note:       note,
		CreatedAt:  s.now(),
	}
	if err := repo.AddTransaction(ctx, txn); err != nil {
		return err
	}
	return repo.SaveAccount(ctx, acct)
}

// Earn credits floor(amount / PointsPerUnit) points and counts the purchase.
// A reference that was already credited is not credited twice.
func (s *Service) Earn(ctx context.Context, customerID int64, amount decimal.Decimal, ref string) (int64, error) {
	points := PointsFor(amount, s.settings.PointsPerUnit)
	kind := resilient.NonIdempotent
	if ref != "" {
		kind = resilient.Idempotent
	}
	err := s.retry.Do(ctx, "loyalty.earn", kind, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			if ref != "" {
				prev, err := repo.FindTransaction(ctx, customerID, domain.PointsEarn, ref)
				if err != nil {
					return err
				}
				if prev != nil {
					points = prev.Points
					return nil
				}
			}
			acct, err := s.account(ctx, repo, customerID)
			if err != nil {
				return err
			}
			acct.TotalSpent = acct.TotalSpent.Add(amount)
			acct.Orders++
			return s.record(ctx, repo, acct, domain.PointsEarn, points, ref, "")
		})
	})
	if err != nil {
		return 0, err
	}
	return points, nil
}

// Redeem deducts points from the balance
func (s *Service) Redeem(ctx context.Context, customerID, points int64, ref string) (*domain.LoyaltyCustomer, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	var acct *domain.LoyaltyCustomer
	err := s.retry.Do(ctx, "loyalty.redeem", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			var err error
			acct, err = repo.GetAccount(ctx, customerID, true)
			if err != nil {
				return err
			}
			if acct.Points < points {
				return &InsufficientPointsError{Have: acct.Points, Need: points}
			}
			return s.record(ctx, repo, acct, domain.PointsRedeem, -points, ref, "")
		})
	})
	return acct, err
}

// Adjust applies a signed manual correction
func (s *Service) Adjust(ctx context.Context, customerID, points int64, note string) (*domain.LoyaltyCustomer, error) {
	if points == 0 {
		return nil, ErrInvalidPoints
	}
	var acct *domain.LoyaltyCustomer
	err := s.retry.Do(ctx, "loyalty.adjust", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			var err error
			acct, err = s.account(ctx, repo, customerID)
			if err != nil {
				return err
			}
			if acct.Points+points < 0 {
				return ErrNegativeBalance
			}
			return s.record(ctx, repo, acct, domain.PointsAdjust, points, "", note)
		})
	})
	return acct, err
}

// Reverse takes back points credited by a sale, never more than the current balance
func (s *Service) Reverse(ctx context.Context, customerID, points int64, ref string) (int64, error) {
	var taken int64
	err := s.retry.Do(ctx, "loyalty.reverse", resilient.Idempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			prev, err := repo.FindTransaction(ctx, customerID, domain.PointsAdjust, ref)
			if err != nil {
				return err
			}
			if prev != nil {
				taken = -prev.Points
				return nil
			}
			acct, err := repo.GetAccount(ctx, customerID, true)
			if err != nil {
				return err
			}
			taken = points
			if acct.Points < taken {
				taken = acct.Points
			}
			if taken <= 0 {
				return nil
			}
			return s.record(ctx, repo, acct, domain.PointsAdjust, -taken, ref, "sale refunded")
		})
	})
	return taken, err
}

// RedeemReward exchanges exactly reward.Points for one unit of the reward
func (s *Service) RedeemReward(ctx context.Context, customerID, rewardID int64) (*domain.Redemption, error) {
	var red *domain.Redemption
	err := s.retry.Do(ctx, "loyalty.redeem_reward", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			reward, err := repo.GetReward(ctx, rewardID, true)
			if err != nil {
				return err
			}
			if reward.Status != common.ENABLED {
				return ErrRewardInactive
			}
			if reward.Stock == 0 {
				return ErrRewardSoldOut
			}
			acct, err := repo.GetAccount(ctx, customerID, true)
			if err != nil {
				return err
			}
			if acct.Points < reward.Points {
				return &InsufficientPointsError{Have: acct.Points, Need: reward.Points}
			}
			ref := fmt.Sprintf("reward:%d", reward.ID)
			if err := s.record(ctx, repo, acct, domain.PointsRedeem, -reward.Points, ref, reward.Name); err != nil {
				return err
			}
			if reward.Stock > 0 {
				reward.Stock--
				if err := repo.SaveReward(ctx, reward); err != nil {
					return err
				}
			}
			red = &domain.Redemption{
				ID:         common.UUIDint64(),
				CustomerID: customerID,
				RewardID:   reward.ID,
				Points:     reward.Points,
				Status:     "completed",
				CreatedAt:  s.now(),
			}
			return repo.CreateRedemption(ctx, red)
		})
	})
	return red, err
}

// Reconcile recomputes balance and tier from the ledger, reports whether the account changed
func (s *Service) Reconcile(ctx context.Context, customerID int64) (bool, error) {
	changed := false
	err := s.retry.Do(ctx, "loyalty.reconcile", resilient.Idempotent, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(repo Repository) error {
			acct, err := repo.GetAccount(ctx, customerID, true)
			if err != nil {
				return err
			}
			sum, err := repo.SumPoints(ctx, customerID)
			if err != nil {
				return err
			}
			tier := TierFor(sum, acct.TotalSpent, s.settings.Thresholds)
			if sum == acct.Points && tier == acct.Tier {
				return nil
			}
			zap.L().Warn("loyalty balance drift corrected",
				zap.Int64("customer_id", customerID),
				zap.Int64("cached", acct.Points),
				zap.Int64("ledger", sum),
				zap.String("namespace", "loyalty"))
			acct.Points = sum
			acct.Tier = tier
			changed = true
			return repo.SaveAccount(ctx, acct)
		})
	})
	return changed, err
}

// ReconcileAll reconciles every account and returns how many were corrected
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	accts, err := resilient.Call(ctx, s.retry, "loyalty.list_accounts", resilient.Idempotent,
		func(ctx context.Context) ([]domain.LoyaltyCustomer, error) {
			return s.repo.ListAccounts(ctx)
		})
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, a := range accts {
		changed, err := s.Reconcile(ctx, a.CustomerID)
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed++
		}
	}
	return fixed, nil
}

// SendCampaign messages every customer in the campaign's segment on a bounded worker pool
func (s *Service) SendCampaign(ctx context.Context, campaignID int64) (*domain.Campaign, error) {
	campaign, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == "sent" {
		return campaign, ErrCampaignSent
	}

	accts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for i := range accts {
		if campaign.Segment == SegmentAll || campaign.Segment == "" || Segment(&accts[i]) == campaign.Segment {
			ids = append(ids, accts[i].CustomerID)
		}
	}
	customers, err := s.repo.GetCustomers(ctx, ids)
	if err != nil {
		return nil, err
	}

	campaign.Status = "sending"
	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(s.settings.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		sent, failed int64
		wg           sync.WaitGroup
	)
	for _, c := range customers {
		recipient := common.IfEmptyStr(c.Email, c.Mobile)
		if recipient == "" {
			atomic.AddInt64(&failed, 1)
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if r := s.messenger.Send(ctx, recipient, campaign.Message); r.Success {
				atomic.AddInt64(&sent, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			atomic.AddInt64(&failed, 1)
		}
	}
	wg.Wait()

	now := s.now()
	campaign.Status = "sent"
	campaign.SentCount = int(sent)
	campaign.FailedCount = int(failed)
	campaign.SentAt = &now
	if err := s.repo.SaveCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	zap.L().Info("campaign sent",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int64("sent", sent),
		zap.Int64("failed", failed),
		zap.String("namespace", "loyalty"))
	return campaign, nil
}
