package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/app"
	"github.com/talkincode/toughpos/internal/catalog"
	"github.com/talkincode/toughpos/internal/loyalty"
	"github.com/talkincode/toughpos/internal/pos/cart"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/purchase"
	"github.com/talkincode/toughpos/internal/webserver"
	"gorm.io/gorm"
)

// Response is the envelope of every successful reply
type Response struct {
	Data interface{} `json:"data"`
}

// PagedResponse is the envelope of list replies
type PagedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// ErrorResponse is the envelope of every failed reply
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Data: data})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, PagedResponse{Data: data, Total: total, Page: page, PageSize: pageSize})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

// parsePagination reads page and perPage, pageSize is accepted for older clients
func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("perPage"))
	if size == 0 {
		size, _ = strconv.Atoi(c.QueryParam("pageSize"))
	}
	if size < 1 || size > 500 {
		size = 20
	}
	return page, size
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
}

func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.ContextKeyApp).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

// operatorID returns the caller from the X-Operator-Id header, 0 when absent
func operatorID(c echo.Context) int64 {
	if v, ok := c.Get(webserver.ContextKeyOperator).(int64); ok {
		return v
	}
	return 0
}

func missingOperator(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "NO_OPERATOR", "X-Operator-Id header is required", nil)
}

func handleValidationError(c echo.Context, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fieldName(fe.Namespace())] = fe.Tag()
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
}

// fieldName drops the struct name, "checkoutPayload.Payments[0].Method" becomes "Payments[0].Method"
func fieldName(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// serviceError maps business errors to http replies
func serviceError(c echo.Context, err error) error {
	var (
		validation *catalog.ValidationError
		stock      *checkout.StockError
		mismatch   *checkout.PaymentMismatchError
		transition *purchase.TransitionError
		points     *loyalty.InsufficientPointsError
	)
	switch {
	case errors.As(err, &validation):
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", validation.Fields)
	case errors.As(err, &stock):
		return fail(c, http.StatusConflict, "INSUFFICIENT_STOCK", stock.Error(), map[string]interface{}{
			"product_id": stock.ProductID,
			"variant_id": stock.VariantID,
			"sku":        stock.Sku,
		})
	case errors.As(err, &mismatch):
		return fail(c, http.StatusBadRequest, "PAYMENT_MISMATCH", mismatch.Error(), nil)
	case errors.As(err, &transition):
		return fail(c, http.StatusConflict, "INVALID_TRANSITION", transition.Error(), nil)
	case errors.As(err, &points):
		return fail(c, http.StatusConflict, "INSUFFICIENT_POINTS", points.Error(), nil)
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, checkout.ErrSaleNotFound),
		errors.Is(err, purchase.ErrNotFound),
		errors.Is(err, loyalty.ErrAccountNotFound),
		errors.Is(err, loyalty.ErrRewardNotFound),
		errors.Is(err, loyalty.ErrCampaignNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, checkout.ErrPermissionDenied):
		return fail(c, http.StatusForbidden, "PERMISSION_DENIED", err.Error(), nil)
	case errors.Is(err, catalog.ErrNameExists),
		errors.Is(err, checkout.ErrNotRefundable),
		errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, purchase.ErrNotEditable),
		errors.Is(err, loyalty.ErrRewardInactive),
		errors.Is(err, loyalty.ErrRewardSoldOut),
		errors.Is(err, loyalty.ErrCampaignSent):
		return fail(c, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case isBusinessError(err):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	}
	return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed", err.Error())
}

var businessErrors = []error{
	catalog.ErrCategoryMissing,
	cart.ErrProductRequired, cart.ErrVariantRequired, cart.ErrVariantMismatch,
	cart.ErrInvalidPrice, cart.ErrNegativeQuantity, cart.ErrItemNotFound,
	cart.ErrInvalidDiscountType, cart.ErrPercentageRange, cart.ErrNegativeDiscount,
	checkout.ErrEmptyCart, checkout.ErrZeroAmount, checkout.ErrCustomerRequired,
	checkout.ErrNoPayments, checkout.ErrInvalidPayment, checkout.ErrUnknownPaymentType,
	purchase.ErrNoItems, purchase.ErrInvalidRate, purchase.ErrSupplierNotFound, purchase.ErrTotalMismatch,
	purchase.ErrInvalidCurrency, purchase.ErrCarrierRequired, purchase.ErrShippingCost,
	purchase.ErrShippingStatus, purchase.ErrUnknownStatus,
	loyalty.ErrInvalidPoints, loyalty.ErrNegativeBalance,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
