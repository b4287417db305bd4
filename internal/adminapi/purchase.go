package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/purchase"
	"github.com/talkincode/toughpos/internal/webserver"
)

type receivePayload struct {
	// Quantities maps item id to received quantity, missing items are fully received
	Quantities map[string]int `json:"quantities"`
}

type shippingStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=shipped received"`
}

type cancelPayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

func registerPurchaseRoutes() {
	webserver.ApiGET("/purchase/orders", listPurchaseOrders)
	webserver.ApiGET("/purchase/orders/:id", getPurchaseOrder)
	webserver.ApiGET("/purchase/orders/:id/events", listPurchaseOrderEvents)
	webserver.ApiPOST("/purchase/orders", createPurchaseOrder)
	webserver.ApiPUT("/purchase/orders/:id", updatePurchaseOrder)
	webserver.ApiPOST("/purchase/orders/:id/send", sendPurchaseOrder)
	webserver.ApiPOST("/purchase/orders/:id/confirm", confirmPurchaseOrder)
	webserver.ApiPOST("/purchase/orders/:id/shipping", assignShipping)
	webserver.ApiPOST("/purchase/orders/:id/shipping-status", updateShippingStatus)
	webserver.ApiPOST("/purchase/orders/:id/receive", receivePurchaseOrder)
	webserver.ApiPOST("/purchase/orders/:id/cancel", cancelPurchaseOrder)
}

func listPurchaseOrders(c echo.Context) error {
	page, pageSize := parsePagination(c)
	filter := purchase.Filter{
		Status:   strings.TrimSpace(c.QueryParam("status")),
		Query:    strings.TrimSpace(c.QueryParam("q")),
		Page:     page,
		PageSize: pageSize,
	}
	filter.SupplierID, _ = strconv.ParseInt(c.QueryParam("supplier_id"), 10, 64)
	rows, total, err := GetAppContext(c).Purchase().List(c.Request().Context(), filter)
	if err != nil {
		return serviceError(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func getPurchaseOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid purchase order ID", nil)
	}
	po, err := GetAppContext(c).Purchase().Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, po)
}

// listPurchaseOrderEvents returns the status history, oldest first
func listPurchaseOrderEvents(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid purchase order ID", nil)
	}
	events, err := GetAppContext(c).Purchase().Events(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, events)
}

func bindOrderForm(c echo.Context) (*purchase.OrderForm, error) {
	var form purchase.OrderForm
	if err := c.Bind(&form); err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse purchase order", err.Error())
	}
	if err := c.Validate(&form); err != nil {
		return nil, handleValidationError(c, err)
	}
	return &form, nil
}

func createPurchaseOrder(c echo.Context) error {
	form, err := bindOrderForm(c)
	if form == nil {
		return err
	}
	po, err := GetAppContext(c).Purchase().Create(c.Request().Context(), form)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, Response{Data: po})
}

func updatePurchaseOrder(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid purchase order ID", nil)
	}
	form, err := bindOrderForm(c)
	if form == nil {
		return err
	}
	po, err := GetAppContext(c).Purchase().Update(c.Request().Context(), id, form)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, po)
}

// transitionHandler adapts a single-step status change to a handler
func transitionHandler(fn func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseIDParam(c, "id")
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid purchase order ID", nil)
		}
		po, err := fn(GetAppContext(c).Purchase(), c, id)
		if err != nil {
			return serviceError(c, err)
		}
		if c.Response().Committed {
			return nil
		}
		return ok(c, po)
	}
}

var sendPurchaseOrder = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	return svc.Send(c.Request().Context(), id)
})

var confirmPurchaseOrder = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	return svc.Confirm(c.Request().Context(), id)
})

var assignShipping = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	var form purchase.ShippingForm
	if err := c.Bind(&form); err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse shipping", err.Error())
	}
	if err := c.Validate(&form); err != nil {
		return nil, handleValidationError(c, err)
	}
	return svc.AssignShipping(c.Request().Context(), id, &form)
})

var updateShippingStatus = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	var payload shippingStatusPayload
	if err := c.Bind(&payload); err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse shipping status", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return nil, handleValidationError(c, err)
	}
	return svc.UpdateShippingStatus(c.Request().Context(), id, payload.Status)
})

var receivePurchaseOrder = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	var payload receivePayload
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&payload); err != nil {
			return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse receipt", err.Error())
		}
	}
	quantities := make(map[int64]int, len(payload.Quantities))
	for k, v := range payload.Quantities {
		itemID, err := strconv.ParseInt(k, 10, 64)
		if err != nil || v < 0 {
			return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid received quantity for item "+k, nil)
		}
		quantities[itemID] = v
	}
	return svc.Receive(c.Request().Context(), id, quantities)
})

var cancelPurchaseOrder = transitionHandler(func(svc *purchase.Service, c echo.Context, id int64) (interface{}, error) {
	var payload cancelPayload
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&payload); err != nil {
			return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cancel reason", err.Error())
		}
	}
	return svc.Cancel(c.Request().Context(), id, payload.Reason)
})
