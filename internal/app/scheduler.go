package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/talkincode/toughpos/internal/catalog"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/report"
	"github.com/talkincode/toughpos/pkg/common"
	"github.com/talkincode/toughpos/pkg/metrics"
	"go.uber.org/zap"
)

var ErrSchedulerNotFound = errors.New("scheduler not found")

// StartSchedulerService runs enabled schedulers periodically
func (a *Application) StartSchedulerService(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.runSchedulers(ctx, time.Now())
			}
		}
	}()
}

func (a *Application) maxWorkers() int {
	n := int(a.GetSettingsInt64Value("scheduler", "max_workers"))
	if n <= 0 {
		n = 8
	}
	return n
}

// runSchedulers executes the enabled schedulers that are due, at most max_workers at a time
func (a *Application) runSchedulers(ctx context.Context, now time.Time) {
	var schedulers []domain.PosScheduler
	if err := a.gormDB.WithContext(ctx).Where("status = ?", common.ENABLED).Find(&schedulers).Error; err != nil {
		zap.L().Error("query schedulers failed", zap.Error(err), zap.String("namespace", "scheduler"))
		return
	}

	pool, err := ants.NewPool(a.maxWorkers())
	if err != nil {
		zap.L().Error("create scheduler pool failed", zap.Error(err), zap.String("namespace", "scheduler"))
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range schedulers {
		sched := schedulers[i]
		if !sched.NextRunAt.IsZero() && now.Before(sched.NextRunAt) {
			continue
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			a.runScheduler(ctx, &sched)
		}); err != nil {
			wg.Done()
			zap.L().Error("submit scheduler failed", zap.String("name", sched.Name), zap.Error(err))
		}
	}
	wg.Wait()
}

// RunSchedulerNow triggers a scheduler execution immediately by ID
func (a *Application) RunSchedulerNow(id int64) error {
	var sched domain.PosScheduler
	if err := a.gormDB.First(&sched, id).Error; err != nil {
		return ErrSchedulerNotFound
	}
	a.runScheduler(context.Background(), &sched)
	return nil
}

// runScheduler executes one task and records the outcome on the scheduler row
func (a *Application) runScheduler(ctx context.Context, sched *domain.PosScheduler) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var (
		msg string
		err error
	)
	switch sched.TaskType {
	case domain.TaskLowStockCheck:
		msg, err = a.runLowStockCheck(ctx)
	case domain.TaskLoyaltyReconcile:
		msg, err = a.runLoyaltyReconcile(ctx)
	case domain.TaskDraftPurge:
		msg, err = a.runDraftPurge()
	case domain.TaskSalesSnapshot:
		msg, err = a.runSalesSnapshot(ctx)
	default:
		err = fmt.Errorf("unknown task type %q", sched.TaskType)
	}

	now := time.Now()
	result := "success"
	if err != nil {
		result = "failed"
		msg = err.Error()
		zap.L().Error("scheduler failed",
			zap.String("name", sched.Name),
			zap.String("task_type", sched.TaskType),
			zap.Error(err),
			zap.String("namespace", "scheduler"))
	} else {
		zap.L().Info("scheduler finished",
			zap.String("name", sched.Name),
			zap.String("message", msg),
			zap.String("namespace", "scheduler"))
	}
	a.gormDB.Model(&domain.PosScheduler{}).Where("id = ?", sched.ID).Updates(map[string]interface{}{
		"last_run_at":  now,
		"last_result":  result,
		"last_message": msg,
		"next_run_at":  now.Add(time.Duration(sched.Interval) * time.Second),
	})
}

// runLowStockCheck publishes the low stock count and alerts the configured recipient
func (a *Application) runLowStockCheck(ctx context.Context) (string, error) {
	items, err := a.catalog.LowStock(ctx, 0)
	if err != nil {
		return "", err
	}
	metrics.SetGauge("pos_low_stock_items", int64(len(items)))
	if len(items) == 0 {
		return "no low stock items", nil
	}
	recipient := a.GetSettingsStringValue("pos", "alert_recipient")
	if recipient == "" || a.messenger == nil {
		return fmt.Sprintf("%d low stock items", len(items)), nil
	}
	res := a.messenger.SendWithReference(ctx, recipient, lowStockMessage(items), "low_stock")
	if !res.Success {
		return "", fmt.Errorf("low stock alert failed: %s", res.Error)
	}
	return fmt.Sprintf("%d low stock items, alert sent", len(items)), nil
}

func lowStockMessage(items []catalog.LowStockItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d items are at or below their minimum stock level:\n", len(items))
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (%s): %d left, minimum %d\n", it.Name, it.Sku, it.StockQuantity, it.MinStockLevel)
	}
	return b.String()
}

func (a *Application) runLoyaltyReconcile(ctx context.Context) (string, error) {
	n, err := a.loyalty.ReconcileAll(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d accounts corrected", n), nil
}

func (a *Application) runDraftPurge() (string, error) {
	hours := a.appConfig.Pos.DraftTTLHours
	if hours <= 0 {
		hours = 72
	}
	n, err := a.local.PurgeDrafts(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d drafts purged", n), nil
}

// runSalesSnapshot stores today's totals as gauges, amounts in minor units
func (a *Application) runSalesSnapshot(ctx context.Context) (string, error) {
	r, err := report.ParseRange("", "", time.Local)
	if err != nil {
		return "", err
	}
	sales, _, err := a.checkout.ListSales(ctx, checkout.SaleFilter{Start: r.Start, End: r.End})
	if err != nil {
		return "", err
	}
	sum, err := report.Summarize(ctx, r, sales, 0)
	if err != nil {
		return "", err
	}
	metrics.SetGauge("pos_today_sales_count", int64(sum.Count))
	metrics.SetGauge("pos_today_refund_count", int64(sum.Refunded))
	metrics.SetGauge("pos_today_net", sum.Net.Shift(2).IntPart())
	return fmt.Sprintf("%d sales, net %s", sum.Count, sum.Net.StringFixed(2)), nil
}
