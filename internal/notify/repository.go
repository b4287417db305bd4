package notify

import (
	"context"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"gorm.io/gorm"
)

// MessageLogRepository handles database operations for message audit logs
type MessageLogRepository interface {
	// Create inserts a new audit log entry
	Create(ctx context.Context, log *domain.MessageLog) error

	// ListByReference retrieves all logs for a reference such as "campaign:1"
	ListByReference(ctx context.Context, reference string) ([]*domain.MessageLog, error)

	// DeleteOlderThan removes old logs (older than N days)
	DeleteOlderThan(ctx context.Context, days int) error
}

// GormMessageLogRepository is the GORM implementation of MessageLogRepository
type GormMessageLogRepository struct {
	db *gorm.DB
}

// NewGormMessageLogRepository creates a new GORM-based log repository
func NewGormMessageLogRepository(db *gorm.DB) *GormMessageLogRepository {
	return &GormMessageLogRepository{db: db}
}

func (r *GormMessageLogRepository) Create(ctx context.Context, log *domain.MessageLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *GormMessageLogRepository) ListByReference(ctx context.Context, reference string) ([]*domain.MessageLog, error) {
	var logs []*domain.MessageLog
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *GormMessageLogRepository) DeleteOlderThan(ctx context.Context, days int) error {
	return r.db.WithContext(ctx).
		Where("created_at < ?", time.Now().AddDate(0, 0, -days)).
		Delete(&domain.MessageLog{}).Error
}
