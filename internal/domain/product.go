package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product conditions
const (
	ConditionNew         = "new"
	ConditionUsed        = "used"
	ConditionRefurbished = "refurbished"
)

// Category groups products and declares the specification schema for them
type Category struct {
	ID            int64     `json:"id,string" form:"id"`
	ParentID      int64     `gorm:"index" json:"parent_id,string" form:"parent_id"`
	Name          string    `gorm:"size:100;index" json:"name" form:"name"`
	SpecSchema    string    `gorm:"type:text" json:"spec_schema"` // JSON encoded catalog.SpecSchema
	SchemaVersion int       `json:"schema_version"`
	Remark        string    `json:"remark" form:"remark"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "pos_category"
}

// Product catalog item. When HasVariants is set, pricing and stock live on the variants
// and the product's own pricing fields are zero.
type Product struct {
	ID            int64            `json:"id,string" form:"id"`
	CategoryID    int64            `gorm:"index" json:"category_id,string" form:"category_id"`
	Name          string           `gorm:"size:100;index" json:"name" form:"name"`
	Description   string           `gorm:"size:200" json:"description" form:"description"`
	Sku           string           `gorm:"size:64;index" json:"sku" form:"sku"`
	Barcode       string           `gorm:"size:64;index" json:"barcode" form:"barcode"`
	Condition     string           `gorm:"size:16" json:"condition" form:"condition"`
	CostPrice     decimal.Decimal  `gorm:"type:decimal(12,2)" json:"cost_price"`
	SellingPrice  decimal.Decimal  `gorm:"type:decimal(12,2)" json:"selling_price"`
	StockQuantity int              `json:"stock_quantity"`
	MinStockLevel int              `json:"min_stock_level"`
	HasVariants   bool             `json:"has_variants"`
	Specification string           `gorm:"type:text" json:"specification"` // JSON object
	Metadata      string           `gorm:"type:text" json:"metadata"`      // JSON object
	Status        string           `gorm:"size:16;index" json:"status"`
	Variants      []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	Images        []ProductImage   `gorm:"foreignKey:ProductID" json:"images,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Product) TableName() string {
	return "pos_product"
}

// ProductVariant is a distinct sellable configuration of a product
type ProductVariant struct {
	ID            int64           `json:"id,string" form:"id"`
	ProductID     int64           `gorm:"index" json:"product_id,string"`
	Name          string          `gorm:"size:100" json:"name"`
	Sku           string          `gorm:"size:64;index" json:"sku"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost_price"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(12,2)" json:"selling_price"`
	StockQuantity int             `json:"stock_quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	Attributes    string          `gorm:"type:text" json:"attributes"` // JSON object, e.g. {"color":"red"}
	Status        string          `gorm:"size:16" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (ProductVariant) TableName() string {
	return "pos_product_variant"
}

// ProductImage references a hosted image, LegacyURL is kept for rows imported from older catalogs
type ProductImage struct {
	ID        int64     `json:"id,string"`
	ProductID int64     `gorm:"index" json:"product_id,string"`
	VariantID int64     `gorm:"index" json:"variant_id,string"`
	URL       string    `gorm:"size:1024" json:"url"`
	LegacyURL string    `gorm:"size:1024" json:"legacy_url"`
	Sort      int       `json:"sort"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProductImage) TableName() string {
	return "pos_product_image"
}
