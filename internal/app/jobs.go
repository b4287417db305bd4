package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/notify"
	"github.com/talkincode/toughpos/internal/purchase"
	"github.com/talkincode/toughpos/pkg/common"
	"github.com/talkincode/toughpos/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormContactLookup resolves a customer's receipt address, email first
type GormContactLookup struct {
	db *gorm.DB
}

func NewGormContactLookup(db *gorm.DB) *GormContactLookup {
	return &GormContactLookup{db: db}
}

func (r *GormContactLookup) Contact(ctx context.Context, customerID int64) (string, error) {
	var c domain.Customer
	err := r.db.WithContext(ctx).Select("email", "mobile").First(&c, customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !common.IsEmptyOrNA(c.Email) {
		return c.Email, nil
	}
	return c.Mobile, nil
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@every 1m", a.SchedStoreMonitorTask)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", a.SchedClearExpireData)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // percentage * 100
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("toughpos_cpuuse", int64(cpuuse*100))
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("toughpos_memuse", int64(meminfo.RSS/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

type storeCounts struct {
	LowStock       int
	OpenPurchases  int64
	LoyaltyMembers int64
}

var openPurchaseStatuses = []string{
	string(purchase.StatusSent),
	string(purchase.StatusConfirmed),
	string(purchase.StatusShipping),
	string(purchase.StatusShipped),
}

func (a *Application) storeCounts(ctx context.Context) (storeCounts, error) {
	var out storeCounts
	items, err := a.catalog.LowStock(ctx, 0)
	if err != nil {
		return out, err
	}
	out.LowStock = len(items)
	db := a.gormDB.WithContext(ctx)
	if err := db.Model(&domain.PurchaseOrder{}).
		Where("status IN ?", openPurchaseStatuses).Count(&out.OpenPurchases).Error; err != nil {
		return out, err
	}
	if err := db.Model(&domain.LoyaltyCustomer{}).Count(&out.LoyaltyMembers).Error; err != nil {
		return out, err
	}
	return out, nil
}

// SchedStoreMonitorTask records stock, purchasing and loyalty gauges
func (a *Application) SchedStoreMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	counts, err := a.storeCounts(context.Background())
	if err != nil {
		zap.L().Warn("store monitor failed", zap.Error(err), zap.String("namespace", "app"))
		return
	}
	metrics.SetGauge("pos_low_stock_items", int64(counts.LowStock))
	metrics.SetGauge("pos_open_purchase_orders", counts.OpenPurchases)
	metrics.SetGauge("pos_loyalty_members", counts.LoyaltyMembers)
}

// SchedClearExpireData drops operator logs and message logs past their retention
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	oprDays := a.ConfigMgr().GetInt("system", "oprlog_retention_days")
	if oprDays == 0 {
		oprDays = 365
	}
	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*time.Duration(oprDays))).Delete(domain.SysOprLog{})

	msgDays := a.ConfigMgr().GetInt("system", "message_log_days")
	if msgDays == 0 {
		msgDays = 90
	}
	repo := notify.NewGormMessageLogRepository(a.gormDB)
	if err := repo.DeleteOlderThan(context.Background(), msgDays); err != nil {
		zap.L().Error("clear message log failed", zap.Error(err), zap.String("namespace", "notify"))
	}
}
