package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/app"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/webserver"
	"github.com/talkincode/toughpos/pkg/common"
	"gorm.io/gorm"
)

const taskTypes = "low_stock_check loyalty_reconcile draft_purge sales_snapshot"

type schedulerPayload struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	TaskType string `json:"task_type" validate:"required,oneof=low_stock_check loyalty_reconcile draft_purge sales_snapshot"`
	Interval int    `json:"interval" validate:"required,min=10"`
	Status   string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Config   string `json:"config" validate:"omitempty,max=2000"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

// schedulerUpdatePayload relaxes validation rules for partial updates
type schedulerUpdatePayload struct {
	Name     string `json:"name" validate:"omitempty,min=1,max=100"`
	TaskType string `json:"task_type" validate:"omitempty,oneof=low_stock_check loyalty_reconcile draft_purge sales_snapshot"`
	Interval int    `json:"interval" validate:"omitempty,min=10"`
	Status   string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Config   string `json:"config" validate:"omitempty,max=2000"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

func registerSchedulerRoutes() {
	webserver.ApiGET("/system/schedulers", ListSchedulers)
	webserver.ApiGET("/system/schedulers/task-types", listTaskTypes)
	webserver.ApiGET("/system/schedulers/:id", GetScheduler)
	webserver.ApiPOST("/system/schedulers", CreateScheduler)
	webserver.ApiPUT("/system/schedulers/:id", UpdateScheduler)
	webserver.ApiDELETE("/system/schedulers/:id", DeleteScheduler)
	webserver.ApiPOST("/system/schedulers/:id/run", TriggerScheduler)
}

func listTaskTypes(c echo.Context) error {
	return ok(c, strings.Fields(taskTypes))
}

// loadScheduler writes the error reply itself and returns nil when the row is unusable
func loadScheduler(c echo.Context) *domain.PosScheduler {
	id, err := parseIDParam(c, "id")
	if err != nil {
		_ = fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
		return nil
	}
	var s domain.PosScheduler
	err = GetDB(c).First(&s, id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		_ = fail(c, http.StatusNotFound, "NOT_FOUND", "Scheduler not found", nil)
		return nil
	case err != nil:
		_ = fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query scheduler", err.Error())
		return nil
	}
	return &s
}

func nameTaken(c echo.Context, name string, excludeID int64) bool {
	var count int64
	GetDB(c).Model(&domain.PosScheduler{}).Where("name = ? AND id <> ?", name, excludeID).Count(&count)
	return count > 0
}

// TriggerScheduler runs the task now and returns once it has finished
func TriggerScheduler(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid scheduler ID", nil)
	}
	if err := GetAppContext(c).RunSchedulerNow(id); errors.Is(err, app.ErrSchedulerNotFound) {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Scheduler not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to run scheduler", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSchedulers supports name, status and task_type filters
func ListSchedulers(c echo.Context) error {
	db := GetDB(c)
	page, perPage := parsePagination(c)

	allowed := map[string]string{
		"id":          "id",
		"name":        "name",
		"task_type":   "task_type",
		"next_run_at": "next_run_at",
		"last_run_at": "last_run_at",
	}
	sortCol, found := allowed[c.QueryParam("sort")]
	if !found {
		sortCol = "id"
	}
	order := strings.ToUpper(c.QueryParam("order"))
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	query := db.Model(&domain.PosScheduler{})
	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		if strings.EqualFold(db.Name(), "postgres") {
			query = query.Where("name ILIKE ?", "%"+name+"%")
		} else {
			query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
		}
	}
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if taskType := strings.TrimSpace(c.QueryParam("task_type")); taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query schedulers", err.Error())
	}
	var schedulers []domain.PosScheduler
	err := query.Order(sortCol + " " + order).Limit(perPage).Offset((page - 1) * perPage).Find(&schedulers).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query schedulers", err.Error())
	}
	return paged(c, schedulers, total, page, perPage)
}

func GetScheduler(c echo.Context) error {
	s := loadScheduler(c)
	if s == nil {
		return nil
	}
	return ok(c, s)
}

func CreateScheduler(c echo.Context) error {
	var payload schedulerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Config != "" && !jsoniter.Valid([]byte(payload.Config)) {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", map[string]string{"config": "json"})
	}
	if nameTaken(c, payload.Name, 0) {
		return fail(c, http.StatusConflict, "NAME_EXISTS", "Scheduler name already exists", nil)
	}
	if payload.Status == "" {
		payload.Status = common.ENABLED
	}

	s := domain.PosScheduler{
		ID:        common.UUIDint64(),
		Name:      payload.Name,
		TaskType:  payload.TaskType,
		Interval:  payload.Interval,
		Status:    payload.Status,
		Config:    payload.Config,
		Remark:    payload.Remark,
		NextRunAt: time.Now().Add(time.Duration(payload.Interval) * time.Second),
	}
	if err := GetDB(c).Create(&s).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create scheduler", err.Error())
	}
	return c.JSON(http.StatusCreated, Response{Data: s})
}

// UpdateScheduler applies the non-empty fields. A new interval restarts the countdown.
func UpdateScheduler(c echo.Context) error {
	s := loadScheduler(c)
	if s == nil {
		return nil
	}
	var payload schedulerUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Config != "" && !jsoniter.Valid([]byte(payload.Config)) {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", map[string]string{"config": "json"})
	}
	if payload.Name != "" && payload.Name != s.Name && nameTaken(c, payload.Name, s.ID) {
		return fail(c, http.StatusConflict, "NAME_EXISTS", "Scheduler name already exists", nil)
	}

	updates := map[string]interface{}{}
	for col, v := range map[string]string{
		"name":      payload.Name,
		"task_type": payload.TaskType,
		"status":    payload.Status,
		"config":    payload.Config,
		"remark":    payload.Remark,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	if payload.Interval > 0 {
		updates["interval"] = payload.Interval
		updates["next_run_at"] = time.Now().Add(time.Duration(payload.Interval) * time.Second)
	}
	if len(updates) > 0 {
		if err := GetDB(c).Model(s).Updates(updates).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update scheduler", err.Error())
		}
	}
	GetDB(c).First(s, s.ID)
	return ok(c, s)
}

func DeleteScheduler(c echo.Context) error {
	s := loadScheduler(c)
	if s == nil {
		return nil
	}
	if err := GetDB(c).Delete(s).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete scheduler", err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
