package purchase

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("purchase order not found")

// Filter list query options
type Filter struct {
	Status     string
	SupplierID int64
	Query      string
	Page       int
	PageSize   int
}

// Repository handles database operations for purchase orders
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	Get(ctx context.Context, id int64, forUpdate bool) (*domain.PurchaseOrder, error)
	List(ctx context.Context, filter Filter) ([]domain.PurchaseOrder, int64, error)
	Create(ctx context.Context, po *domain.PurchaseOrder) error
	// Save writes the order row only
	Save(ctx context.Context, po *domain.PurchaseOrder) error
	ReplaceItems(ctx context.Context, po *domain.PurchaseOrder) error
	SaveItem(ctx context.Context, item *domain.PurchaseOrderItem) error
	SaveShipping(ctx context.Context, info *domain.ShippingInfo) error
	AddEvent(ctx context.Context, ev *domain.PurchaseOrderEvent) error
	ListEvents(ctx context.Context, orderID int64) ([]domain.PurchaseOrderEvent, error)
	CountNumbers(ctx context.Context, prefix string) (int64, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
	// ReceiveStock adds qty to the product or variant stock and sets its cost price
	ReceiveStock(ctx context.Context, productID, variantID int64, qty int, cost decimal.Decimal) error
}

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

func (r *GormRepository) isPostgres() bool {
	return strings.EqualFold(r.db.Name(), "postgres")
}

func (r *GormRepository) Get(ctx context.Context, id int64, forUpdate bool) (*domain.PurchaseOrder, error) {
	db := r.db.WithContext(ctx)
	if forUpdate && r.isPostgres() {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var po domain.PurchaseOrder
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Shipping").
		First(&po, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *GormRepository) List(ctx context.Context, filter Filter) ([]domain.PurchaseOrder, int64, error) {
	db := r.db.WithContext(ctx).Model(&domain.PurchaseOrder{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.SupplierID != 0 {
		db = db.Where("supplier_id = ?", filter.SupplierID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		if r.isPostgres() {
			db = db.Where("order_number ILIKE ? OR notes ILIKE ?", "%"+q+"%", "%"+q+"%")
		} else {
			like := "%" + strings.ToLower(q) + "%"
			db = db.Where("LOWER(order_number) LIKE ? OR LOWER(notes) LIKE ?", like, like)
		}
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 20
	}
	var rows []domain.PurchaseOrder
	err := db.Preload("Items").Preload("Shipping").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *GormRepository) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.db.WithContext(ctx).Omit("Shipping").Create(po).Error
}

func (r *GormRepository) Save(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(po).Error
}

func (r *GormRepository) ReplaceItems(ctx context.Context, po *domain.PurchaseOrder) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("purchase_order_id = ?", po.ID).Delete(&domain.PurchaseOrderItem{}).Error; err != nil {
		return err
	}
	if len(po.Items) == 0 {
		return nil
	}
	return db.Create(&po.Items).Error
}

func (r *GormRepository) SaveItem(ctx context.Context, item *domain.PurchaseOrderItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *GormRepository) SaveShipping(ctx context.Context, info *domain.ShippingInfo) error {
	return r.db.WithContext(ctx).Save(info).Error
}

func (r *GormRepository) AddEvent(ctx context.Context, ev *domain.PurchaseOrderEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *GormRepository) ListEvents(ctx context.Context, orderID int64) ([]domain.PurchaseOrderEvent, error) {
	var evs []domain.PurchaseOrderEvent
	err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", orderID).
		Order("occurred_at ASC, id ASC").
		Find(&evs).Error
	return evs, err
}

func (r *GormRepository) CountNumbers(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PurchaseOrder{}).
		Where("order_number LIKE ?", prefix+"%").
		Count(&count).Error
	return count, err
}

func (r *GormRepository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Supplier{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *GormRepository) ReceiveStock(ctx context.Context, productID, variantID int64, qty int, cost decimal.Decimal) error {
	db := r.db.WithContext(ctx)
	updates := map[string]interface{}{
		"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
		"cost_price":     cost,
	}
	var res *gorm.DB
	if variantID != 0 {
		res = db.Model(&domain.ProductVariant{}).Where("id = ? AND product_id = ?", variantID, productID).Updates(updates)
	} else {
		res = db.Model(&domain.Product{}).Where("id = ?", productID).Updates(updates)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
