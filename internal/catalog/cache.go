package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/talkincode/toughpos/internal/domain"
	"go.uber.org/zap"
)

const notFoundMarker = "notfound"

// CachedProductRepository is a cache-aside decorator over a ProductRepository.
// Reads of a single product go through redis, every write invalidates the product key.
type CachedProductRepository struct {
	ProductRepository
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedProductRepository(repo ProductRepository, rdb *redis.Client, ttl time.Duration) *CachedProductRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProductRepository{ProductRepository: repo, redis: rdb, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("toughpos:product:%d", id)
}

func (c *CachedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productKey(id)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, ErrNotFound
		}
		var p domain.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		zap.L().Warn("drop corrupt product cache entry", zap.String("key", key), zap.String("namespace", "catalog"))
	case errors.Is(err, redis.Nil):
	default:
		zap.L().Warn("redis get failed, continuing with db", zap.Error(err), zap.String("namespace", "catalog"))
	}

	p, err := c.ProductRepository.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if setErr := c.redis.Set(ctx, key, notFoundMarker, time.Minute).Err(); setErr != nil {
				zap.L().Warn("cache notfound failed", zap.Error(setErr), zap.String("namespace", "catalog"))
			}
		}
		return nil, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			zap.L().Warn("cache product failed", zap.Error(err), zap.String("namespace", "catalog"))
		}
	}
	return p, nil
}

// Invalidate drops the cached copy of a product
func (c *CachedProductRepository) Invalidate(ctx context.Context, id int64) {
	if err := c.redis.Del(ctx, productKey(id)).Err(); err != nil {
		zap.L().Warn("invalidate product cache failed",
			zap.Int64("product_id", id), zap.Error(err), zap.String("namespace", "catalog"))
	}
}

func (c *CachedProductRepository) Create(ctx context.Context, p *domain.Product) error {
	err := c.ProductRepository.Create(ctx, p)
	c.Invalidate(ctx, p.ID)
	return err
}

func (c *CachedProductRepository) CreateVariant(ctx context.Context, v *domain.ProductVariant) error {
	err := c.ProductRepository.CreateVariant(ctx, v)
	c.Invalidate(ctx, v.ProductID)
	return err
}

func (c *CachedProductRepository) CreateImage(ctx context.Context, img *domain.ProductImage) error {
	err := c.ProductRepository.CreateImage(ctx, img)
	c.Invalidate(ctx, img.ProductID)
	return err
}

func (c *CachedProductRepository) Update(ctx context.Context, p *domain.Product) error {
	err := c.ProductRepository.Update(ctx, p)
	c.Invalidate(ctx, p.ID)
	return err
}

func (c *CachedProductRepository) Delete(ctx context.Context, id int64) error {
	err := c.ProductRepository.Delete(ctx, id)
	c.Invalidate(ctx, id)
	return err
}
