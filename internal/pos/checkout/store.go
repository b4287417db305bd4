package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"gorm.io/gorm"
)

var (
	ErrSaleNotFound  = errors.New("sale not found")
	ErrNotRefundable = errors.New("only completed sales can be refunded")
)

// StockError names the line that could not be covered by stock
type StockError struct {
	Sku       string
	ProductID int64
	VariantID int64
	Wanted    int
}

func (e *StockError) Error() string {
	name := e.Sku
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: wanted %d", name, e.Wanted)
}

// SaleFilter list query options
type SaleFilter struct {
	Status     string
	CustomerID int64
	OperatorID int64
	Start      time.Time
	End        time.Time
	Page       int
	PageSize   int
}

// SaleStore persists sales. CreateSale is one logical transaction: the sale, its lines,
// its payments and the stock decrement succeed or fail together.
type SaleStore interface {
	// CreateSale returns the stored sale, existing is true when the idempotency key was seen before
	CreateSale(ctx context.Context, sale *domain.Sale) (stored *domain.Sale, existing bool, err error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	GetByReceipt(ctx context.Context, receiptNo string) (*domain.Sale, error)
	// GetByKey returns nil without an error when no sale carries the key
	GetByKey(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, int64, error)
	SetPointsEarned(ctx context.Context, id int64, points int64) error
	// Refund marks a completed sale refunded and puts its items back in stock
	Refund(ctx context.Context, id int64, reason string, at time.Time) (*domain.Sale, error)
}

type GormSaleStore struct {
	db *gorm.DB
}

func NewGormSaleStore(db *gorm.DB) *GormSaleStore {
	return &GormSaleStore{db: db}
}

func (s *GormSaleStore) preload(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (s *GormSaleStore) findByKey(db *gorm.DB, key string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.preload(db).Where("idempotency_key = ?", key).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

func (s *GormSaleStore) CreateSale(ctx context.Context, sale *domain.Sale) (*domain.Sale, bool, error) {
	var (
		stored   *domain.Sale
		existing bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.findByKey(tx, sale.IdempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil {
			stored, existing = prev, true
			return nil
		}
		for _, it := range sale.Items {
			if err := decrementStock(tx, it); err != nil {
				return err
			}
		}
		if err := tx.Create(sale).Error; err != nil {
			return err
		}
		stored = sale
		return nil
	})
	if isUniqueViolation(err) {
		// a concurrent attempt with the same key won
		prev, ferr := s.findByKey(s.db.WithContext(ctx), sale.IdempotencyKey)
		if ferr == nil && prev != nil {
			return prev, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return stored, existing, nil
}

func decrementStock(tx *gorm.DB, it domain.SaleItem) error {
	var res *gorm.DB
	if it.VariantID != 0 {
		res = tx.Model(&domain.ProductVariant{}).
			Where("id = ? AND product_id = ? AND stock_quantity >= ?", it.VariantID, it.ProductID, it.Quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", it.Quantity))
	} else {
		res = tx.Model(&domain.Product{}).
			Where("id = ? AND stock_quantity >= ?", it.ProductID, it.Quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", it.Quantity))
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &StockError{Sku: it.Sku, ProductID: it.ProductID, VariantID: it.VariantID, Wanted: it.Quantity}
	}
	return nil
}

func (s *GormSaleStore) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.preload(s.db.WithContext(ctx)).First(&sale, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormSaleStore) GetByReceipt(ctx context.Context, receiptNo string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.preload(s.db.WithContext(ctx)).Where("receipt_no = ?", receiptNo).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormSaleStore) GetByKey(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findByKey(s.db.WithContext(ctx), key)
}

func (s *GormSaleStore) ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, int64, error) {
	db := s.db.WithContext(ctx).Model(&domain.Sale{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		db = db.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.OperatorID != 0 {
		db = db.Where("operator_id = ?", filter.OperatorID)
	}
	if !filter.Start.IsZero() {
		db = db.Where("created_at >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		db = db.Where("created_at < ?", filter.End)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := s.preload(db).Order("created_at DESC, id DESC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	var rows []domain.Sale
	err := query.Find(&rows).Error
	return rows, total, err
}

func (s *GormSaleStore) SetPointsEarned(ctx context.Context, id int64, points int64) error {
	return s.db.WithContext(ctx).Model(&domain.Sale{}).Where("id = ?", id).Update("points_earned", points).Error
}

func (s *GormSaleStore) Refund(ctx context.Context, id int64, reason string, at time.Time) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.preload(tx).First(&sale, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSaleNotFound
			}
			return err
		}
		if sale.Status != domain.SaleStatusCompleted {
			return ErrNotRefundable
		}
		res := tx.Model(&domain.Sale{}).
			Where("id = ? AND status = ?", id, domain.SaleStatusCompleted).
			Updates(map[string]interface{}{
				"status":        domain.SaleStatusRefunded,
				"refund_reason": reason,
				"refunded_at":   at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotRefundable
		}
		for _, it := range sale.Items {
			var err error
			if it.VariantID != 0 {
				err = tx.Model(&domain.ProductVariant{}).Where("id = ?", it.VariantID).
					Update("stock_quantity", gorm.Expr("stock_quantity + ?", it.Quantity)).Error
			} else {
				err = tx.Model(&domain.Product{}).Where("id = ?", it.ProductID).
					Update("stock_quantity", gorm.Expr("stock_quantity + ?", it.Quantity)).Error
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sale.Status = domain.SaleStatusRefunded
	sale.RefundReason = reason
	sale.RefundedAt = &at
	return &sale, nil
}

// GormPermissionChecker allows enabled operators with a selling level
type GormPermissionChecker struct {
	db *gorm.DB
}

func NewGormPermissionChecker(db *gorm.DB) *GormPermissionChecker {
	return &GormPermissionChecker{db: db}
}

func (p *GormPermissionChecker) CanSell(ctx context.Context, operatorID int64) (bool, error) {
	var opr domain.SysOpr
	err := p.db.WithContext(ctx).First(&opr, operatorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return opr.CanSell(), nil
}
