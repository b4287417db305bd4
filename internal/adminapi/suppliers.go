package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/purchase"
	"github.com/talkincode/toughpos/internal/webserver"
	"github.com/talkincode/toughpos/pkg/common"
)

type supplierPayload struct {
	Code        string `json:"code" validate:"required,min=1,max=32"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
	ContactName string `json:"contact_name" validate:"omitempty,max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Remark      string `json:"remark" validate:"omitempty,max=500"`
}

type supplierUpdatePayload struct {
	Code        *string `json:"code" validate:"omitempty,min=1,max=32"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	ContactName *string `json:"contact_name" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Currency    *string `json:"currency" validate:"omitempty,len=3"`
	Remark      *string `json:"remark" validate:"omitempty,max=500"`
}

// registerSupplierRoutes registers supplier CRUD routes
func registerSupplierRoutes() {
	webserver.ApiGET("/purchase/suppliers", listSuppliers)
	webserver.ApiGET("/purchase/suppliers/:id", getSupplier)
	webserver.ApiPOST("/purchase/suppliers", createSupplier)
	webserver.ApiPUT("/purchase/suppliers/:id", updateSupplier)
	webserver.ApiDELETE("/purchase/suppliers/:id", deleteSupplier)
}

func listSuppliers(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.Supplier{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		if strings.EqualFold(db.Name(), "postgres") { //nolint:staticcheck
			db = db.Where("code ILIKE ? OR name ILIKE ?", "%"+q+"%", "%"+q+"%")
		} else {
			db = db.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%", "%"+strings.ToLower(q)+"%")
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query suppliers", err.Error())
	}

	var suppliers []domain.Supplier
	if err := db.Order("id DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&suppliers).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query suppliers", err.Error())
	}

	return paged(c, suppliers, total, page, pageSize)
}

func getSupplier(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid supplier ID", nil)
	}

	var v domain.Supplier
	if err := GetDB(c).Where("id = ?", id).First(&v).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SUPPLIER_NOT_FOUND", "Supplier not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query supplier", err.Error())
	}

	return ok(c, v)
}

func createSupplier(c echo.Context) error {
	var payload supplierPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse supplier parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	payload.Code = strings.ToUpper(strings.TrimSpace(payload.Code))
	payload.Name = strings.TrimSpace(payload.Name)
	cur, err := purchase.NormalizeCurrency(payload.Currency)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CURRENCY", err.Error(), nil)
	}

	var exists int64
	GetDB(c).Model(&domain.Supplier{}).Where("code = ?", payload.Code).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "SUPPLIER_EXISTS", "Supplier code already exists", nil)
	}

	supplier := domain.Supplier{
		ID:          common.UUIDint64(),
		Code:        payload.Code,
		Name:        payload.Name,
		ContactName: payload.ContactName,
		Email:       payload.Email,
		Phone:       payload.Phone,
		Currency:    cur,
		Remark:      payload.Remark,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := GetDB(c).Create(&supplier).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create supplier", err.Error())
	}

	return ok(c, supplier)
}

func updateSupplier(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid supplier ID", nil)
	}

	var payload supplierUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse supplier parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var v domain.Supplier
	if err := GetDB(c).Where("id = ?", id).First(&v).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SUPPLIER_NOT_FOUND", "Supplier not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query supplier", err.Error())
	}

	if payload.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*payload.Code))
		if code != v.Code {
			var exists int64
			GetDB(c).Model(&domain.Supplier{}).Where("code = ? AND id != ?", code, id).Count(&exists)
			if exists > 0 {
				return fail(c, http.StatusConflict, "SUPPLIER_EXISTS", "Supplier code already exists", nil)
			}
			v.Code = code
		}
	}
	if payload.Name != nil {
		v.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.ContactName != nil {
		v.ContactName = *payload.ContactName
	}
	if payload.Email != nil {
		v.Email = *payload.Email
	}
	if payload.Phone != nil {
		v.Phone = *payload.Phone
	}
	if payload.Currency != nil {
		cur, err := purchase.NormalizeCurrency(*payload.Currency)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_CURRENCY", err.Error(), nil)
		}
		v.Currency = cur
	}
	if payload.Remark != nil {
		v.Remark = *payload.Remark
	}
	v.UpdatedAt = time.Now()

	if err := GetDB(c).Save(&v).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update supplier", err.Error())
	}

	return ok(c, v)
}

func deleteSupplier(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid supplier ID", nil)
	}

	var v domain.Supplier
	if err := GetDB(c).Where("id = ?", id).First(&v).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SUPPLIER_NOT_FOUND", "Supplier not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query supplier", err.Error())
	}

	// Purchase orders keep their supplier
	var poCount int64
	GetDB(c).Model(&domain.PurchaseOrder{}).Where("supplier_id = ?", v.ID).Count(&poCount)
	if poCount > 0 {
		return fail(c, http.StatusConflict, "SUPPLIER_IN_USE", "Supplier has purchase orders and cannot be deleted", map[string]interface{}{"order_count": poCount})
	}

	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Supplier{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete supplier", err.Error())
	}

	return ok(c, map[string]interface{}{"id": id})
}
