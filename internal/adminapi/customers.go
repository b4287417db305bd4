package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/webserver"
	"github.com/talkincode/toughpos/pkg/common"
)

func registerCustomerRoutes() {
	webserver.ApiGET("/crm/customers", listCustomers)
	webserver.ApiGET("/crm/customers/:id", getCustomer)
	webserver.ApiPOST("/crm/customers", createCustomer)
	webserver.ApiPUT("/crm/customers/:id", updateCustomer)
	webserver.ApiDELETE("/crm/customers/:id", deleteCustomer)
}

func listCustomers(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c)
	base := db.Model(&domain.Customer{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		if strings.EqualFold(db.Name(), "postgres") {
			base = base.Where("name ILIKE ? OR mobile LIKE ? OR email ILIKE ?", "%"+q+"%", "%"+q+"%", "%"+q+"%")
		} else {
			lq := "%" + strings.ToLower(q) + "%"
			base = base.Where("LOWER(name) LIKE ? OR mobile LIKE ? OR LOWER(email) LIKE ?", lq, "%"+q+"%", lq)
		}
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customers", err.Error())
	}

	var customers []domain.Customer
	if err := base.Order("id DESC").Offset((page-1)*pageSize).Limit(pageSize).Find(&customers).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customers", err.Error())
	}
	return paged(c, customers, total, page, pageSize)
}

// getCustomer returns the customer and, when enrolled, the loyalty account
func getCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var cu domain.Customer
	if err := GetDB(c).Where("id = ?", id).First(&cu).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customer", err.Error())
	}
	result := map[string]interface{}{"customer": cu}
	if acct, err := GetAppContext(c).Loyalty().GetAccount(c.Request().Context(), id); err == nil {
		result["loyalty"] = acct
	}
	return ok(c, result)
}

type customerPayload struct {
	Name    string `json:"name" validate:"omitempty,max=100"`
	Company string `json:"company" validate:"omitempty,max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
	Mobile  string `json:"mobile" validate:"omitempty,max=32"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Remark  string `json:"remark"`
}

func mobileTaken(c echo.Context, mobile string, excludeID int64) bool {
	var dup domain.Customer
	err := GetDB(c).Where("(mobile = ? OR phone = ?) AND id <> ?", mobile, mobile, excludeID).First(&dup).Error
	return err == nil
}

func createCustomer(c echo.Context) error {
	var payload customerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if strings.TrimSpace(payload.Name) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_NAME", "Customer name is required", nil)
	}
	if payload.Mobile != "" && mobileTaken(c, payload.Mobile, 0) {
		return fail(c, http.StatusConflict, "DUPLICATE_CUSTOMER", "Customer with this phone/mobile already exists", nil)
	}

	cu := domain.Customer{
		ID:        common.UUIDint64(),
		Name:      strings.TrimSpace(payload.Name),
		Company:   payload.Company,
		Email:     payload.Email,
		Mobile:    payload.Mobile,
		Phone:     payload.Phone,
		Address:   payload.Address,
		City:      payload.City,
		Country:   payload.Country,
		Remark:    payload.Remark,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&cu).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create customer", err.Error())
	}
	return ok(c, cu)
}

func updateCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var payload customerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	var cu domain.Customer
	if err := GetDB(c).Where("id = ?", id).First(&cu).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customer", err.Error())
	}

	updates := map[string]interface{}{}
	set := func(col, v string) {
		if v != "" {
			updates[col] = v
		}
	}
	set("name", strings.TrimSpace(payload.Name))
	set("company", payload.Company)
	set("email", payload.Email)
	for _, m := range []string{payload.Mobile, payload.Phone} {
		if m != "" && mobileTaken(c, m, id) {
			return fail(c, http.StatusConflict, "DUPLICATE_CUSTOMER", "Another customer with this phone/mobile already exists", nil)
		}
	}
	set("mobile", payload.Mobile)
	set("phone", payload.Phone)
	set("address", payload.Address)
	set("city", payload.City)
	set("country", payload.Country)
	set("remark", payload.Remark)
	updates["updated_at"] = time.Now()
	if err := GetDB(c).Model(&cu).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update customer", err.Error())
	}
	GetDB(c).Where("id = ?", id).First(&cu)
	return ok(c, cu)
}

func deleteCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var sales int64
	GetDB(c).Model(&domain.Sale{}).Where("customer_id = ?", id).Count(&sales)
	if sales > 0 {
		return fail(c, http.StatusConflict, "CUSTOMER_IN_USE", "Customer has sales and cannot be deleted", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Customer{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete customer", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}
