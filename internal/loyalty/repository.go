package loyalty

import (
	"context"
	"errors"
	"strings"

	"github.com/talkincode/toughpos/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("loyalty account not found")
	ErrRewardNotFound   = errors.New("reward not found")
	ErrCampaignNotFound = errors.New("campaign not found")
)

// Repository handles database operations for the loyalty ledger
type Repository interface {
	// Transaction runs fn against a repository bound to one database transaction
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	GetAccount(ctx context.Context, customerID int64, forUpdate bool) (*domain.LoyaltyCustomer, error)
	SaveAccount(ctx context.Context, acct *domain.LoyaltyCustomer) error
	ListAccounts(ctx context.Context) ([]domain.LoyaltyCustomer, error)
	AddTransaction(ctx context.Context, txn *domain.PointTransaction) error
	FindTransaction(ctx context.Context, customerID int64, typ, reference string) (*domain.PointTransaction, error)
	ListTransactions(ctx context.Context, customerID int64, limit int) ([]domain.PointTransaction, error)
	SumPoints(ctx context.Context, customerID int64) (int64, error)
	GetReward(ctx context.Context, id int64, forUpdate bool) (*domain.LoyaltyReward, error)
	SaveReward(ctx context.Context, reward *domain.LoyaltyReward) error
	ListRewards(ctx context.Context) ([]domain.LoyaltyReward, error)
	CreateRedemption(ctx context.Context, r *domain.Redemption) error
	GetCustomers(ctx context.Context, ids []int64) ([]domain.Customer, error)
	GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error)
	SaveCampaign(ctx context.Context, c *domain.Campaign) error
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

// lock adds SELECT ... FOR UPDATE where the dialect supports it
func (r *GormRepository) lock(db *gorm.DB, forUpdate bool) *gorm.DB {
	if forUpdate && strings.EqualFold(r.db.Name(), "postgres") {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *GormRepository) GetAccount(ctx context.Context, customerID int64, forUpdate bool) (*domain.LoyaltyCustomer, error) {
	var acct domain.LoyaltyCustomer
	err := r.lock(r.db.WithContext(ctx), forUpdate).
		Where("customer_id = ?", customerID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *GormRepository) SaveAccount(ctx context.Context, acct *domain.LoyaltyCustomer) error {
	return r.db.WithContext(ctx).Save(acct).Error
}

func (r *GormRepository) ListAccounts(ctx context.Context) ([]domain.LoyaltyCustomer, error) {
	var accts []domain.LoyaltyCustomer
	err := r.db.WithContext(ctx).Order("id ASC").Find(&accts).Error
	return accts, err
}

func (r *GormRepository) AddTransaction(ctx context.Context, txn *domain.PointTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *GormRepository) FindTransaction(ctx context.Context, customerID int64, typ, reference string) (*domain.PointTransaction, error) {
	var txn domain.PointTransaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND type = ? AND reference = ?", customerID, typ, reference).
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *GormRepository) ListTransactions(ctx context.Context, customerID int64, limit int) ([]domain.PointTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []domain.PointTransaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *GormRepository) SumPoints(ctx context.Context, customerID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&domain.PointTransaction{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *GormRepository) GetReward(ctx context.Context, id int64, forUpdate bool) (*domain.LoyaltyReward, error) {
	var reward domain.LoyaltyReward
	err := r.lock(r.db.WithContext(ctx), forUpdate).First(&reward, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *GormRepository) SaveReward(ctx context.Context, reward *domain.LoyaltyReward) error {
	return r.db.WithContext(ctx).Save(reward).Error
}

func (r *GormRepository) ListRewards(ctx context.Context) ([]domain.LoyaltyReward, error) {
	var rewards []domain.LoyaltyReward
	err := r.db.WithContext(ctx).Order("points ASC").Find(&rewards).Error
	return rewards, err
}

func (r *GormRepository) CreateRedemption(ctx context.Context, red *domain.Redemption) error {
	return r.db.WithContext(ctx).Create(red).Error
}

func (r *GormRepository) GetCustomers(ctx context.Context, ids []int64) ([]domain.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var customers []domain.Customer
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&customers).Error
	return customers, err
}

func (r *GormRepository) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormRepository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *GormRepository) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&campaigns).Error
	return campaigns, err
}
