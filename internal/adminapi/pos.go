package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/pos/cart"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/report"
	"github.com/talkincode/toughpos/internal/webserver"
	"go.uber.org/zap"
)

// cartPayload describes the cart being priced or sold
type cartPayload struct {
	CustomerID int64              `json:"customer_id,string"`
	Lines      []checkout.Line    `json:"lines" validate:"required,min=1,dive"`
	Discount   *cart.Discount     `json:"discount"`
	Payments   []checkout.Payment `json:"payments" validate:"dive"`
}

type checkoutPayload struct {
	cartPayload
	IdempotencyKey string `json:"idempotency_key" validate:"max=64"`
	Note           string `json:"note" validate:"max=255"`
	SendReceipt    bool   `json:"send_receipt"`
}

type refundPayload struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func registerPosRoutes() {
	webserver.ApiPOST("/pos/quote", quoteCart)
	webserver.ApiPOST("/pos/checkout", submitSale)
	webserver.ApiGET("/pos/sales", listSales)
	webserver.ApiGET("/pos/sales/:id", getSale)
	webserver.ApiPOST("/pos/sales/:id/refund", refundSale)
	webserver.ApiGET("/pos/sales/:id/receipt", getSaleReceipt)
	webserver.ApiGET("/pos/receipts/:no", getReceipt)
	webserver.ApiGET("/pos/drafts", getDraft)
	webserver.ApiPUT("/pos/drafts", saveDraft)
	webserver.ApiDELETE("/pos/drafts", discardDraft)
}

func buildSession(c echo.Context, opr int64, p *cartPayload) (*checkout.Session, error) {
	return checkout.BuildSession(c.Request().Context(), GetAppContext(c).Catalog(), opr, p.CustomerID, p.Lines, p.Discount)
}

// quoteCart prices a cart and checks the tendered payments without saving anything
func quoteCart(c echo.Context) error {
	var payload cartPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	sess, err := buildSession(c, operatorID(c), &payload)
	if err != nil {
		return serviceError(c, err)
	}
	q, err := GetAppContext(c).Checkout().Quote(sess, payload.Payments)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, q)
}

// submitSale records a sale. A failed attempt is kept as the operator's draft and the
// idempotency key is returned so the retry cannot create a second sale.
func submitSale(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	var payload checkoutPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse sale", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if len(payload.Payments) == 0 {
		return serviceError(c, checkout.ErrNoPayments)
	}

	svc := GetAppContext(c).Checkout()
	sess, err := buildSession(c, opr, &payload.cartPayload)
	if err != nil {
		return serviceError(c, err)
	}
	key := strings.TrimSpace(payload.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.Request().Header.Get(webserver.HeaderIdempotencyKey))
	}
	sess.PendingKey = key

	res, err := svc.Checkout(c.Request().Context(), sess, checkout.Request{
		Payments:       payload.Payments,
		IdempotencyKey: key,
		Note:           payload.Note,
		SendReceipt:    payload.SendReceipt,
	})
	if err != nil {
		if sess.PendingKey != "" {
			c.Response().Header().Set(webserver.HeaderIdempotencyKey, sess.PendingKey)
			if derr := svc.SaveDraft(sess); derr != nil {
				zap.L().Warn("save checkout draft failed",
					zap.Int64("operator_id", opr), zap.Error(derr), zap.String("namespace", "adminapi"))
			}
		}
		return serviceError(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, Response{Data: res})
}

func listSales(c echo.Context) error {
	page, pageSize := parsePagination(c)
	filter := checkout.SaleFilter{
		Status:   strings.TrimSpace(c.QueryParam("status")),
		Page:     page,
		PageSize: pageSize,
	}
	filter.CustomerID, _ = strconv.ParseInt(c.QueryParam("customer_id"), 10, 64)
	filter.OperatorID, _ = strconv.ParseInt(c.QueryParam("operator_id"), 10, 64)
	if start, end := c.QueryParam("start"), c.QueryParam("end"); start != "" || end != "" {
		r, err := report.ParseRange(start, end, time.Local)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
		}
		filter.Start, filter.End = r.Start, r.End
	}
	sales, total, err := GetAppContext(c).Checkout().ListSales(c.Request().Context(), filter)
	if err != nil {
		return serviceError(c, err)
	}
	return paged(c, sales, total, page, pageSize)
}

func getSale(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid sale ID", nil)
	}
	sale, err := GetAppContext(c).Checkout().GetSale(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, sale)
}

func refundSale(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid sale ID", nil)
	}
	var payload refundPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse refund", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	sale, err := GetAppContext(c).Checkout().Refund(c.Request().Context(), opr, id, payload.Reason)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, sale)
}

func getSaleReceipt(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid sale ID", nil)
	}
	sale, err := GetAppContext(c).Checkout().GetSale(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return renderReceipt(c, sale)
}

// getReceipt looks a sale up by the number printed on the receipt
func getReceipt(c echo.Context) error {
	sale, err := GetAppContext(c).Checkout().GetByReceipt(c.Request().Context(), c.Param("no"))
	if err != nil {
		return serviceError(c, err)
	}
	return renderReceipt(c, sale)
}

// renderReceipt writes the receipt as text (default) or json
func renderReceipt(c echo.Context, sale *domain.Sale) error {
	if c.QueryParam("format") == "json" {
		body, err := report.RenderJSON(sale)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "RENDER_FAILED", "Failed to render receipt", err.Error())
		}
		return c.JSONBlob(http.StatusOK, body)
	}
	return c.String(http.StatusOK, report.RenderText(sale))
}

func getDraft(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	svc := GetAppContext(c).Checkout()
	sess, found, err := svc.LoadDraft(opr)
	if err != nil {
		return serviceError(c, err)
	}
	if !found {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "No saved cart", nil)
	}
	q, err := svc.Quote(sess, nil)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]interface{}{
		"draft":  sess.Draft(),
		"totals": q.Totals,
	})
}

func saveDraft(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	var payload cartPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	sess, err := buildSession(c, opr, &payload)
	if err != nil {
		return serviceError(c, err)
	}
	if err := GetAppContext(c).Checkout().SaveDraft(sess); err != nil {
		return serviceError(c, err)
	}
	return ok(c, sess.Draft())
}

func discardDraft(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	if err := GetAppContext(c).Checkout().DiscardDraft(opr); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
