package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
)

// DismissStore remembers which low-stock alerts a user has hidden for the day
type DismissStore interface {
	DismissLowStock(userID, productID int64, now time.Time) error
	DismissedToday(userID int64, now time.Time) (map[int64]bool, error)
}

// Service implements catalog maintenance on top of a ProductRepository
type Service struct {
	repo    ProductRepository
	retry   *resilient.Client
	dismiss DismissStore
	index   *SkuIndex
	now     func() time.Time
}

func NewService(repo ProductRepository, retry *resilient.Client, dismiss DismissStore) *Service {
	if retry == nil {
		retry = resilient.NewClient(resilient.DefaultPolicy)
	}
	return &Service{
		repo:    repo,
		retry:   retry,
		dismiss: dismiss,
		index:   NewSkuIndex(),
		now:     time.Now,
	}
}

// Index exposes the SKU index for read-only lookups
func (s *Service) Index() *SkuIndex {
	return s.index
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return resilient.Call(ctx, s.retry, "catalog.get_product", resilient.Idempotent,
		func(ctx context.Context) (*domain.Product, error) {
			return s.repo.GetByID(ctx, id)
		})
}

func (s *Service) GetVariant(ctx context.Context, id int64) (*domain.ProductVariant, error) {
	return resilient.Call(ctx, s.retry, "catalog.get_variant", resilient.Idempotent,
		func(ctx context.Context) (*domain.ProductVariant, error) {
			return s.repo.GetVariant(ctx, id)
		})
}

func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, int64, error) {
	var (
		rows  []domain.Product
		total int64
	)
	err := s.retry.Do(ctx, "catalog.list_products", resilient.Idempotent, func(ctx context.Context) error {
		var err error
		rows, total, err = s.repo.List(ctx, filter)
		return err
	})
	return rows, total, err
}

func (s *Service) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	return resilient.Call(ctx, s.retry, "catalog.name_exists", resilient.Idempotent,
		func(ctx context.Context) (bool, error) {
			return s.repo.NameExists(ctx, name, excludeID)
		})
}

// prepare validates the form against the field rules, the category schema and name uniqueness
func (s *Service) prepare(ctx context.Context, form *ProductForm, excludeID int64) (Specification, error) {
	form.Normalize()
	errs := Validate(form)

	var spec Specification
	if form.CategoryID != 0 {
		category, err := s.repo.GetCategory(ctx, form.CategoryID)
		switch {
		case errors.Is(err, ErrCategoryMissing):
			errs.Add("category_id", "not found")
		case err != nil:
			return spec, err
		default:
			schema, err := ParseSchema(category.SpecSchema)
			if err != nil {
				return spec, err
			}
			if _, bad := errs["specification"]; !bad {
				var specErrs Errors
				spec, specErrs = ParseSpecification(form.Specification, schema)
				for k, v := range specErrs {
					errs.Add(k, v)
				}
			}
		}
	}
	if len(errs) > 0 {
		return spec, &ValidationError{Fields: errs}
	}

	exists, err := s.NameExists(ctx, form.Name, excludeID)
	if err != nil {
		return spec, err
	}
	if exists {
		return spec, &ValidationError{Fields: Errors{"name": ErrNameExists.Error()}}
	}
	return spec, nil
}

func buildProduct(form *ProductForm, spec Specification) *domain.Product {
	p := &domain.Product{
		CategoryID:    form.CategoryID,
		Name:          form.Name,
		Description:   form.Description,
		Sku:           form.Sku,
		Barcode:       form.Barcode,
		Condition:     form.Condition,
		HasVariants:   form.UseVariants,
		Specification: spec.JSON(),
		Status:        common.ENABLED,
	}
	if len(form.Metadata) > 0 {
		if b, err := json.Marshal(form.Metadata); err == nil {
			p.Metadata = string(b)
		}
	}
	if !form.UseVariants {
		p.SellingPrice = form.Price
		p.CostPrice = form.CostPrice
		p.StockQuantity = form.StockQuantity
		p.MinStockLevel = form.MinStockLevel
	}
	return p
}

func buildVariant(productID int64, vf VariantForm) domain.ProductVariant {
	v := domain.ProductVariant{
		ID:            vf.ID,
		ProductID:     productID,
		Name:          vf.Name,
		Sku:           vf.Sku,
		SellingPrice:  vf.Price,
		CostPrice:     vf.CostPrice,
		StockQuantity: vf.StockQuantity,
		MinStockLevel: vf.MinStockLevel,
		Status:        common.ENABLED,
	}
	if v.ID == 0 {
		v.ID = common.UUIDint64()
	}
	if len(vf.Attributes) > 0 {
		if b, err := json.Marshal(vf.Attributes); err == nil {
			v.Attributes = string(b)
		}
	}
	return v
}

func buildImages(productID int64, forms []ImageForm) []domain.ProductImage {
	images := make([]domain.ProductImage, 0, len(forms))
	for i, f := range forms {
		images = append(images, domain.ProductImage{
			ID:        common.UUIDint64(),
			ProductID: productID,
			URL:       f.URL,
			LegacyURL: f.LegacyURL,
			Sort:      i,
			IsPrimary: f.IsPrimary || (i == 0 && !anyPrimary(forms)),
		})
	}
	return images
}

func anyPrimary(forms []ImageForm) bool {
	for _, f := range forms {
		if f.IsPrimary {
			return true
		}
	}
	return false
}

// CreateProduct validates and stores a new product with its variants and images.
// Once the product row is written, failed variant or image inserts come back as warnings.
func (s *Service) CreateProduct(ctx context.Context, form *ProductForm) (*domain.Product, []string, error) {
	spec, err := s.prepare(ctx, form, 0)
	if err != nil {
		return nil, nil, err
	}

	p := buildProduct(form, spec)
	p.ID = common.UUIDint64()
	if err := s.retry.Do(ctx, "catalog.create_product", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	}); err != nil {
		return nil, nil, err
	}

	var warnings []string
	if form.UseVariants {
		for _, vf := range form.Variants {
			v := buildVariant(p.ID, vf)
			if err := s.retry.Do(ctx, "catalog.create_variant", resilient.NonIdempotent, func(ctx context.Context) error {
				return s.repo.CreateVariant(ctx, &v)
			}); err != nil {
				warnings = append(warnings, fmt.Sprintf("variant %q not saved: %v", v.Name, err))
				continue
			}
			p.Variants = append(p.Variants, v)
		}
	}
	for _, img := range buildImages(p.ID, form.Images) {
		img := img
		if err := s.retry.Do(ctx, "catalog.create_image", resilient.NonIdempotent, func(ctx context.Context) error {
			return s.repo.CreateImage(ctx, &img)
		}); err != nil {
			warnings = append(warnings, fmt.Sprintf("image %d not saved: %v", img.Sort, err))
			continue
		}
		p.Images = append(p.Images, img)
	}
	for _, w := range warnings {
		zap.L().Warn("product saved with warnings",
			zap.Int64("product_id", p.ID), zap.String("warning", w), zap.String("namespace", "catalog"))
	}

	s.indexProduct(p)
	return p, warnings, nil
}

// UpdateProduct replaces the editable fields, variants and images of a product
func (s *Service) UpdateProduct(ctx context.Context, id int64, form *ProductForm) (*domain.Product, error) {
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	spec, err := s.prepare(ctx, form, id)
	if err != nil {
		return nil, err
	}

	p := buildProduct(form, spec)
	p.ID = current.ID
	p.Status = current.Status
	p.CreatedAt = current.CreatedAt
	if form.UseVariants {
		for _, vf := range form.Variants {
			p.Variants = append(p.Variants, buildVariant(p.ID, vf))
		}
	}
	p.Images = buildImages(p.ID, form.Images)

	if err := s.retry.Do(ctx, "catalog.update_product", resilient.NonIdempotent, func(ctx context.Context) error {
		return s.repo.Update(ctx, p)
	}); err != nil {
		return nil, err
	}
	s.unindexProduct(current)
	s.indexProduct(p)
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.retry.Do(ctx, "catalog.delete_product", resilient.Idempotent, func(ctx context.Context) error {
		err := s.repo.Delete(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	s.unindexProduct(current)
	return nil
}

// LowStock lists items at or below their minimum level, minus the ones the user hid today
func (s *Service) LowStock(ctx context.Context, userID int64) ([]LowStockItem, error) {
	items, err := resilient.Call(ctx, s.retry, "catalog.low_stock", resilient.Idempotent,
		func(ctx context.Context) ([]LowStockItem, error) {
			return s.repo.ListLowStock(ctx)
		})
	if err != nil || s.dismiss == nil || userID == 0 {
		return items, err
	}
	hidden, err := s.dismiss.DismissedToday(userID, s.now())
	if err != nil {
		zap.L().Warn("read dismissed low stock failed", zap.Error(err), zap.String("namespace", "catalog"))
		return items, nil
	}
	visible := items[:0]
	for _, it := range items {
		if !hidden[it.ProductID] {
			visible = append(visible, it)
		}
	}
	return visible, nil
}

func (s *Service) DismissLowStock(userID, productID int64) error {
	if s.dismiss == nil {
		return nil
	}
	return s.dismiss.DismissLowStock(userID, productID, s.now())
}

// RefreshIndex rebuilds the SKU index from the database
func (s *Service) RefreshIndex(ctx context.Context) error {
	entries, err := resilient.Call(ctx, s.retry, "catalog.list_skus", resilient.Idempotent,
		func(ctx context.Context) ([]SkuEntry, error) {
			return s.repo.ListSkus(ctx)
		})
	if err != nil {
		return err
	}
	s.index.Reset(entries)
	return nil
}

// LookupSKU returns index entries starting with prefix
func (s *Service) LookupSKU(prefix string, limit int) []SkuEntry {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	return s.index.Prefix(prefix, limit)
}

func (s *Service) indexProduct(p *domain.Product) {
	s.index.Put(SkuEntry{Sku: p.Sku, ProductID: p.ID, Name: p.Name})
	for _, v := range p.Variants {
		s.index.Put(SkuEntry{Sku: v.Sku, ProductID: p.ID, VariantID: v.ID, Name: v.Name})
	}
}

func (s *Service) unindexProduct(p *domain.Product) {
	if p.Sku != "" {
		s.index.Remove(p.Sku)
	}
	for _, v := range p.Variants {
		if v.Sku != "" {
			s.index.Remove(v.Sku)
		}
	}
}
