package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/internal/catalog"
	"github.com/talkincode/toughpos/internal/domain"
)

func schedulerByType(t *testing.T, a *Application, taskType string) domain.PosScheduler {
	t.Helper()
	var s domain.PosScheduler
	require.NoError(t, a.DB().Where("task_type = ?", taskType).First(&s).Error)
	return s
}

func TestRunLowStockScheduler(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.DB().Create(&[]domain.Product{
		{ID: 1, Name: "Beans", Sku: "BEAN", SellingPrice: decimal.NewFromInt(5), StockQuantity: 2, MinStockLevel: 5},
		{ID: 2, Name: "Tea", Sku: "TEA", SellingPrice: decimal.NewFromInt(4), StockQuantity: 50, MinStockLevel: 5},
	}).Error)

	sched := schedulerByType(t, a, domain.TaskLowStockCheck)
	require.NoError(t, a.RunSchedulerNow(sched.ID))

	got := schedulerByType(t, a, domain.TaskLowStockCheck)
	assert.Equal(t, "success", got.LastResult)
	assert.Equal(t, "1 low stock items", got.LastMessage)
	assert.True(t, got.NextRunAt.After(time.Now()))
}

func TestRunSchedulerNotFound(t *testing.T) {
	a := newTestApp(t)
	assert.ErrorIs(t, a.RunSchedulerNow(42), ErrSchedulerNotFound)
}

func TestRunSchedulersOnlyDue(t *testing.T) {
	a := newTestApp(t)
	now := time.Now()
	future := now.Add(time.Hour)
	require.NoError(t, a.DB().Model(&domain.PosScheduler{}).Where("1 = 1").Update("next_run_at", future).Error)
	require.NoError(t, a.DB().Model(&domain.PosScheduler{}).
		Where("task_type IN ?", []string{domain.TaskDraftPurge, domain.TaskSalesSnapshot}).
		Update("next_run_at", now.Add(-time.Minute)).Error)

	a.runSchedulers(context.Background(), now)

	assert.Equal(t, "0 drafts purged", schedulerByType(t, a, domain.TaskDraftPurge).LastMessage)
	assert.Equal(t, "0 sales, net 0.00", schedulerByType(t, a, domain.TaskSalesSnapshot).LastMessage)
	assert.Empty(t, schedulerByType(t, a, domain.TaskLowStockCheck).LastResult)
	assert.Empty(t, schedulerByType(t, a, domain.TaskLoyaltyReconcile).LastResult)
}

func TestRunSchedulersSkipsDisabled(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.DB().Model(&domain.PosScheduler{}).Where("1 = 1").Updates(map[string]interface{}{
		"status":      "disabled",
		"next_run_at": time.Time{},
	}).Error)

	a.runSchedulers(context.Background(), time.Now())

	var count int64
	a.DB().Model(&domain.PosScheduler{}).Where("last_result <> ''").Count(&count)
	assert.Zero(t, count)
}

func TestLowStockMessage(t *testing.T) {
	msg := lowStockMessage([]catalog.LowStockItem{
		{Name: "Mug / Large", Sku: "MUG-L", StockQuantity: 1, MinStockLevel: 3},
	})
	assert.Contains(t, msg, "1 items are at or below")
	assert.Contains(t, msg, "- Mug / Large (MUG-L): 1 left, minimum 3")
}
