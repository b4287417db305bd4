package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/talkincode/toughpos/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrNameExists      = errors.New("name already exists")
	ErrCategoryMissing = errors.New("category not found")
)

// ProductFilter list query options
type ProductFilter struct {
	Query      string
	CategoryID int64
	Status     string
	Sort       string
	Order      string
	Page       int
	PageSize   int
}

// LowStockItem is a product or variant at or below its minimum stock level
type LowStockItem struct {
	ProductID     int64  `json:"product_id,string"`
	VariantID     int64  `json:"variant_id,string"`
	Name          string `json:"name"`
	Sku           string `json:"sku"`
	StockQuantity int    `json:"stock_quantity"`
	MinStockLevel int    `json:"min_stock_level"`
}

// SkuEntry is a row of the in-memory SKU index
type SkuEntry struct {
	Sku       string `json:"sku"`
	ProductID int64  `json:"product_id,string"`
	VariantID int64  `json:"variant_id,string"`
	Name      string `json:"name"`
}

// ProductRepository handles database operations for products
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetVariant(ctx context.Context, id int64) (*domain.ProductVariant, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, p *domain.Product) error
	CreateVariant(ctx context.Context, v *domain.ProductVariant) error
	CreateImage(ctx context.Context, img *domain.ProductImage) error
	// Update saves the product row and replaces its variants and images
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int64, error)
	ListLowStock(ctx context.Context) ([]LowStockItem, error)
	ListSkus(ctx context.Context) ([]SkuEntry, error)
}

// GormProductRepository is the GORM implementation of ProductRepository
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("sort ASC") }).
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *GormProductRepository) GetVariant(ctx context.Context, id int64) (*domain.ProductVariant, error) {
	var v domain.ProductVariant
	if err := r.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (r *GormProductRepository) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryMissing
		}
		return nil, err
	}
	return &c, nil
}

func (r *GormProductRepository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (r *GormProductRepository) CreateVariant(ctx context.Context, v *domain.ProductVariant) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *GormProductRepository) CreateImage(ctx context.Context, img *domain.ProductImage) error {
	return r.db.WithContext(ctx).Create(img).Error
}

func (r *GormProductRepository) Update(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(p).Error; err != nil {
			return err
		}
		keep := make([]int64, 0, len(p.Variants))
		for i := range p.Variants {
			p.Variants[i].ProductID = p.ID
			if err := tx.Save(&p.Variants[i]).Error; err != nil {
				return err
			}
			keep = append(keep, p.Variants[i].ID)
		}
		stale := tx.Where("product_id = ?", p.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&domain.ProductVariant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", p.ID).Delete(&domain.ProductImage{}).Error; err != nil {
			return err
		}
		for i := range p.Images {
			p.Images[i].ProductID = p.ID
			if err := tx.Create(&p.Images[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormProductRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&domain.ProductImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&domain.ProductVariant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// whitelist allowed sort columns to avoid SQL injection
var productSortColumns = map[string]string{
	"id":             "id",
	"name":           "name",
	"sku":            "sku",
	"selling_price":  "selling_price",
	"stock_quantity": "stock_quantity",
	"created_at":     "created_at",
	"updated_at":     "updated_at",
}

func (r *GormProductRepository) List(ctx context.Context, filter ProductFilter) ([]domain.Product, int64, error) {
	db := r.db.WithContext(ctx).Model(&domain.Product{})
	if q := strings.TrimSpace(filter.Query); q != "" {
		if strings.EqualFold(r.db.Name(), "postgres") {
			db = db.Where("name ILIKE ? OR sku ILIKE ?", "%"+q+"%", "%"+q+"%")
		} else {
			like := "%" + strings.ToLower(q) + "%"
			db = db.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
		}
	}
	if filter.CategoryID != 0 {
		db = db.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortCol, ok := productSortColumns[filter.Sort]
	if !ok {
		sortCol = "id"
	}
	order := strings.ToUpper(filter.Order)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 20
	}

	var rows []domain.Product
	err := db.Preload("Variants").
		Order(sortCol + " " + order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	return rows, total, err
}

func (r *GormProductRepository) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	var products []domain.Product
	if err := r.db.WithContext(ctx).
		Where("has_variants = ? AND stock_quantity <= min_stock_level", false).
		Order("stock_quantity ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	items := make([]LowStockItem, 0, len(products))
	for _, p := range products {
		items = append(items, LowStockItem{
			ProductID:     p.ID,
			Name:          p.Name,
			Sku:           p.Sku,
			StockQuantity: p.StockQuantity,
			MinStockLevel: p.MinStockLevel,
		})
	}

	type variantRow struct {
		domain.ProductVariant
		ProductName string
	}
	var variants []variantRow
	if err := r.db.WithContext(ctx).
		Table(domain.ProductVariant{}.TableName()+" v").
		Select("v.*, p.name AS product_name").
		Joins("JOIN "+domain.Product{}.TableName()+" p ON p.id = v.product_id").
		Where("v.stock_quantity <= v.min_stock_level").
		Order("v.stock_quantity ASC").
		Scan(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		items = append(items, LowStockItem{
			ProductID:     v.ProductID,
			VariantID:     v.ID,
			Name:          v.ProductName + " / " + v.Name,
			Sku:           v.Sku,
			StockQuantity: v.StockQuantity,
			MinStockLevel: v.MinStockLevel,
		})
	}
	return items, nil
}

func (r *GormProductRepository) ListSkus(ctx context.Context) ([]SkuEntry, error) {
	var entries []SkuEntry
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select("sku, id AS product_id, 0 AS variant_id, name").
		Where("sku <> ''").
		Scan(&entries).Error; err != nil {
		return nil, err
	}
	var variants []SkuEntry
	if err := r.db.WithContext(ctx).Model(&domain.ProductVariant{}).
		Select("sku, product_id, id AS variant_id, name").
		Where("sku <> ''").
		Scan(&variants).Error; err != nil {
		return nil, err
	}
	return append(entries, variants...), nil
}
