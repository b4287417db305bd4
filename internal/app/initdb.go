package app

import (
	"errors"
	"strings"
	"time"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seed creates the rows a fresh install needs, existing rows are left alone
func (a *Application) seed() {
	a.checkSuper()
	a.checkSettings()
	a.checkSchedulers()
	a.checkSuppliers()
	a.checkCategories()
}

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "toughpos"

	hashedPassword, err := common.HashPassword(defaultPassword)
	if err != nil {
		zap.L().Error("failed to hash default password", zap.Error(err))
		return
	}

	var operator domain.SysOpr
	err = a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  hashedPassword,
			Level:     domain.OprLevelSuper,
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, domain.OprLevelSuper)
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = hashedPassword
	}
	if resetLevel {
		updates["level"] = domain.OprLevelSuper
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

func (a *Application) checkSettings() {
	schemas, err := loadConfigSchemas()
	if err != nil {
		zap.L().Error("failed to load config schemas from JSON", zap.Error(err))
		return
	}

	for sortid, schema := range schemas {
		// "category.name" -> category, name
		category, name, ok := strings.Cut(schema.Key, ".")
		if !ok {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     common.UUIDint64(),
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}

// checkSchedulers initializes default scheduled tasks
func (a *Application) checkSchedulers() {
	defaultSchedulers := []domain.PosScheduler{
		{
			Name:     "Low Stock Check",
			TaskType: domain.TaskLowStockCheck,
			Interval: 3600,
			Status:   common.ENABLED,
			Remark:   "Counts items at or below their threshold and alerts the store manager",
		},
		{
			Name:     "Loyalty Reconcile",
			TaskType: domain.TaskLoyaltyReconcile,
			Interval: 86400,
			Status:   common.ENABLED,
			Remark:   "Recomputes point balances from the transaction ledger",
		},
		{
			Name:     "Cart Draft Purge",
			TaskType: domain.TaskDraftPurge,
			Interval: 21600,
			Status:   common.ENABLED,
			Remark:   "Removes abandoned cart drafts from local storage",
		},
		{
			Name:     "Sales Snapshot",
			TaskType: domain.TaskSalesSnapshot,
			Interval: 900,
			Status:   common.ENABLED,
			Remark:   "Publishes today's sales totals to the metrics store",
		},
	}

	for _, sched := range defaultSchedulers {
		var count int64
		a.gormDB.Model(&domain.PosScheduler{}).
			Where("task_type = ?", sched.TaskType).
			Count(&count)

		if count == 0 {
			sched.ID = common.UUIDint64()
			sched.NextRunAt = time.Now().Add(time.Duration(sched.Interval) * time.Second)
			if err := a.gormDB.Create(&sched).Error; err != nil {
				zap.L().Error("failed to create default scheduler",
					zap.String("name", sched.Name),
					zap.Error(err))
			} else {
				zap.L().Info("initialized default scheduler",
					zap.String("name", sched.Name),
					zap.String("task_type", sched.TaskType))
			}
		}
	}
}

// checkSuppliers seeds a walk-in supplier so purchase orders can be drafted on a fresh install
func (a *Application) checkSuppliers() {
	defaults := []domain.Supplier{
		{Code: "LOCAL", Name: "Local Market", Currency: "USD", Remark: "default supplier"},
	}
	for _, v := range defaults {
		var count int64
		a.gormDB.Model(&domain.Supplier{}).Where("code = ?", v.Code).Count(&count)
		if count == 0 {
			v.ID = common.UUIDint64()
			if err := a.gormDB.Create(&v).Error; err != nil {
				zap.L().Error("failed to create default supplier", zap.String("code", v.Code), zap.Error(err))
			} else {
				zap.L().Info("initialized default supplier", zap.String("code", v.Code), zap.String("name", v.Name))
			}
		}
	}
}

// checkCategories seeds the root category
func (a *Application) checkCategories() {
	var count int64
	a.gormDB.Model(&domain.Category{}).Count(&count)
	if count > 0 {
		return
	}
	if err := a.gormDB.Create(&domain.Category{
		ID:     common.UUIDint64(),
		Name:   "General",
		Remark: "default category",
	}).Error; err != nil {
		zap.L().Error("failed to create default category", zap.Error(err))
	}
}
