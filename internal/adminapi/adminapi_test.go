package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/config"
	"github.com/talkincode/toughpos/internal/app"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/testutil"
	"github.com/talkincode/toughpos/internal/webserver"
)

type fixture struct {
	app      *app.Application
	e        *echo.Echo
	operator int64
	category int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := *config.DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	cfg.Pos.RetryInitialMs = 1
	cfg.Pos.RetryMaxMs = 1

	a := app.NewApplication(&cfg)
	a.OverrideDB(testutil.NewTestDB(t))
	a.InitDb()
	require.NoError(t, a.InitServices())
	t.Cleanup(func() {
		a.Bus().Wait()
		a.Messenger().Close()
		_ = a.LocalStore().Close()
	})

	webserver.ResetRoutes()
	Init()

	f := &fixture{app: a, e: webserver.NewAdminServer(a).Echo()}
	var opr domain.SysOpr
	require.NoError(t, a.DB().Where("username = ?", "admin").First(&opr).Error)
	f.operator = opr.ID
	var cat domain.Category
	require.NoError(t, a.DB().First(&cat).Error)
	f.category = cat.ID
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, opr int64) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if opr != 0 {
		req.Header.Set(webserver.HeaderOperator, strconv.FormatInt(opr, 10))
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func (f *fixture) createProduct(t *testing.T, name, price string, stock int) int64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/catalog/products", map[string]interface{}{
		"name":           name,
		"category_id":    strconv.FormatInt(f.category, 10),
		"condition":      "new",
		"price":          price,
		"stock_quantity": stock,
	}, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Product domain.Product `json:"product"`
	}
	decodeData(t, rec, &out)
	return out.Product.ID
}

func (f *fixture) createCustomer(t *testing.T, name, mobile string) int64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/crm/customers", map[string]string{"name": name, "mobile": mobile}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cu domain.Customer
	decodeData(t, rec, &cu)
	return cu.ID
}

func (f *fixture) stockOf(t *testing.T, productID int64) int {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/catalog/products/"+strconv.FormatInt(productID, 10), nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p domain.Product
	decodeData(t, rec, &p)
	return p.StockQuantity
}

func line(productID int64, qty int) map[string]interface{} {
	return map[string]interface{}{"product_id": strconv.FormatInt(productID, 10), "quantity": qty}
}

func TestProductValidationErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/catalog/validate", map[string]interface{}{
		"condition": "broken",
		"price":     "-1",
	}, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	details, ok := resp.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "price")

	rec = f.do(t, http.MethodGet, "/catalog/products/12345", nil, 0)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutAndRefund(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Coffee Beans", "5.00", 10)

	cart := map[string]interface{}{
		"lines":    []interface{}{line(pid, 2)},
		"payments": []map[string]string{{"method": "cash", "amount": "20"}},
	}
	rec := f.do(t, http.MethodPost, "/pos/quote", cart, f.operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q struct {
		Totals struct {
			Total decimal.Decimal `json:"total"`
		} `json:"totals"`
	}
	decodeData(t, rec, &q)
	assert.True(t, q.Totals.Total.Equal(decimal.NewFromInt(10)), q.Totals.Total.String())

	rec = f.do(t, http.MethodPost, "/pos/checkout", cart, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cart["idempotency_key"] = "till-1-0001"
	rec = f.do(t, http.MethodPost, "/pos/checkout", cart, f.operator)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Sale      domain.Sale     `json:"sale"`
		ReceiptNo string          `json:"receipt_no"`
		Change    decimal.Decimal `json:"change"`
	}
	decodeData(t, rec, &res)
	assert.True(t, res.Change.Equal(decimal.NewFromInt(10)))
	assert.NotEmpty(t, res.ReceiptNo)
	assert.Equal(t, 8, f.stockOf(t, pid))

	rec = f.do(t, http.MethodPost, "/pos/checkout", cart, f.operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 8, f.stockOf(t, pid))

	rec = f.do(t, http.MethodGet, "/pos/receipts/"+res.ReceiptNo, nil, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), res.ReceiptNo)

	saleURL := "/pos/sales/" + strconv.FormatInt(res.Sale.ID, 10)
	rec = f.do(t, http.MethodPost, saleURL+"/refund", map[string]string{"reason": "damaged"}, f.operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refunded domain.Sale
	decodeData(t, rec, &refunded)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.Equal(t, 10, f.stockOf(t, pid))

	rec = f.do(t, http.MethodPost, saleURL+"/refund", map[string]string{"reason": "again"}, f.operator)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutRejectsUnderpayment(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Tea", "4.00", 5)

	rec := f.do(t, http.MethodPost, "/pos/checkout", map[string]interface{}{
		"lines":    []interface{}{line(pid, 1)},
		"payments": []map[string]string{{"method": "cash", "amount": "3"}},
	}, f.operator)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PAYMENT_MISMATCH", decodeError(t, rec).Error)
	assert.Equal(t, 5, f.stockOf(t, pid))
}

func TestFailedCheckoutKeepsDraft(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Mug", "7.50", 3)
	cid := f.createCustomer(t, "Ana", "5550100")

	rec := f.do(t, http.MethodPost, "/loyalty/customers/"+strconv.FormatInt(cid, 10), nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/pos/checkout", map[string]interface{}{
		"customer_id": strconv.FormatInt(cid, 10),
		"lines":       []interface{}{line(pid, 1)},
		"payments":    []map[string]string{{"method": "points", "amount": "7.50"}},
	}, f.operator)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_POINTS", decodeError(t, rec).Error)
	key := rec.Header().Get(webserver.HeaderIdempotencyKey)
	require.NotEmpty(t, key)

	rec = f.do(t, http.MethodGet, "/pos/drafts", nil, f.operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Draft struct {
			PendingKey string `json:"pending_key"`
		} `json:"draft"`
	}
	decodeData(t, rec, &out)
	assert.Equal(t, key, out.Draft.PendingKey)
	assert.Equal(t, 3, f.stockOf(t, pid))

	rec = f.do(t, http.MethodDelete, "/pos/drafts", nil, f.operator)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/pos/drafts", nil, f.operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutRetryWithReturnedKey(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Mug", "7.50", 3)
	cid := f.createCustomer(t, "Ana", "5550100")
	acctURL := "/loyalty/customers/" + strconv.FormatInt(cid, 10)

	rec := f.do(t, http.MethodPost, acctURL, nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sale := map[string]interface{}{
		"customer_id": strconv.FormatInt(cid, 10),
		"lines":       []interface{}{line(pid, 1)},
		"payments":    []map[string]string{{"method": "points", "amount": "7.50"}},
	}
	rec = f.do(t, http.MethodPost, "/pos/checkout", sale, f.operator)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	key := rec.Header().Get(webserver.HeaderIdempotencyKey)
	require.NotEmpty(t, key)

	rec = f.do(t, http.MethodPost, acctURL+"/adjust", map[string]interface{}{"points": 10, "note": "top up"}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	points := func() int64 {
		rec := f.do(t, http.MethodGet, acctURL, nil, 0)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out struct {
			Account domain.LoyaltyCustomer `json:"account"`
		}
		decodeData(t, rec, &out)
		return out.Account.Points
	}

	type result struct {
		ReceiptNo string `json:"receipt_no"`
		Replayed  bool   `json:"replayed"`
	}
	sale["idempotency_key"] = key
	rec = f.do(t, http.MethodPost, "/pos/checkout", sale, f.operator)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first result
	decodeData(t, rec, &first)
	assert.False(t, first.Replayed)
	balance := points()
	assert.Less(t, balance, int64(10))

	rec = f.do(t, http.MethodPost, "/pos/checkout", sale, f.operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second result
	decodeData(t, rec, &second)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ReceiptNo, second.ReceiptNo)
	assert.Equal(t, balance, points())
	assert.Equal(t, 2, f.stockOf(t, pid))

	rec = f.do(t, http.MethodGet, "/pos/drafts", nil, f.operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseOrderReceive(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Paper Cups", "0.20", 0)

	rec := f.do(t, http.MethodPost, "/purchase/suppliers", map[string]string{
		"code": "ACME", "name": "Acme Supplies", "currency": "eur",
	}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sup domain.Supplier
	decodeData(t, rec, &sup)
	assert.Equal(t, "EUR", sup.Currency)

	order := map[string]interface{}{
		"supplier_id": strconv.FormatInt(sup.ID, 10),
		"items": []map[string]interface{}{
			{"product_id": strconv.FormatInt(pid, 10), "quantity": 100, "cost_price": "0.05"},
		},
	}
	rec = f.do(t, http.MethodPost, "/purchase/orders", order, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var po domain.PurchaseOrder
	decodeData(t, rec, &po)
	assert.Equal(t, "draft", po.Status)
	base := "/purchase/orders/" + strconv.FormatInt(po.ID, 10)

	rec = f.do(t, http.MethodPost, base+"/receive", nil, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/send", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, base+"/receive", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &po)
	assert.Equal(t, "received", po.Status)
	assert.Equal(t, 100, f.stockOf(t, pid))

	rec = f.do(t, http.MethodPost, base+"/cancel", nil, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, base+"/events", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.PurchaseOrderEvent
	decodeData(t, rec, &events)
	require.Len(t, events, 3)
	assert.Equal(t, "draft", events[0].ToStatus)
	assert.Equal(t, "received", events[2].ToStatus)
}

func TestSupplierWithOrdersCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	pid := f.createProduct(t, "Lids", "0.10", 0)
	rec := f.do(t, http.MethodPost, "/purchase/suppliers", map[string]string{"code": "LIDCO", "name": "Lid Co"}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sup domain.Supplier
	decodeData(t, rec, &sup)

	rec = f.do(t, http.MethodPost, "/purchase/orders", map[string]interface{}{
		"supplier_id": strconv.FormatInt(sup.ID, 10),
		"items":       []map[string]interface{}{{"product_id": strconv.FormatInt(pid, 10), "quantity": 5}},
	}, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/purchase/suppliers/"+strconv.FormatInt(sup.ID, 10), nil, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoyaltyAdjustAndRewards(t *testing.T) {
	f := newFixture(t)
	cid := f.createCustomer(t, "Ben", "5550199")
	acctURL := "/loyalty/customers/" + strconv.FormatInt(cid, 10)

	rec := f.do(t, http.MethodGet, acctURL, nil, 0)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, acctURL+"/adjust", map[string]interface{}{"points": 50, "note": "welcome"}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var acct domain.LoyaltyCustomer
	decodeData(t, rec, &acct)
	assert.Equal(t, int64(50), acct.Points)

	rec = f.do(t, http.MethodPost, "/loyalty/rewards", map[string]interface{}{
		"name": "Free coffee", "points": 30, "stock": 1,
	}, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reward domain.LoyaltyReward
	decodeData(t, rec, &reward)

	redeemURL := acctURL + "/rewards/" + strconv.FormatInt(reward.ID, 10) + "/redeem"
	rec = f.do(t, http.MethodPost, redeemURL, nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, redeemURL, nil, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, acctURL+"/redeem", map[string]interface{}{"points": 500}, 0)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_POINTS", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodGet, acctURL+"/transactions", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.PointTransaction
	decodeData(t, rec, &history)
	assert.Len(t, history, 2)

	rec = f.do(t, http.MethodPost, acctURL+"/adjust", map[string]interface{}{"note": "nothing"}, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Error)
}

func TestSettingsAndReports(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/system/settings", map[string]interface{}{"pos.tax_rate": "10"}, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var values map[string]string
	decodeData(t, rec, &values)
	assert.Equal(t, "10", values["pos.tax_rate"])
	assert.Equal(t, "USD", values["pos.currency"])
	assert.True(t, f.app.Checkout().TaxRate().Equal(decimal.NewFromInt(10)))

	rec = f.do(t, http.MethodPut, "/system/settings", map[string]interface{}{"notakey": "1"}, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pid := f.createProduct(t, "Bagel", "2.00", 10)
	rec = f.do(t, http.MethodPost, "/pos/checkout", map[string]interface{}{
		"lines":    []interface{}{line(pid, 5)},
		"payments": []map[string]string{{"method": "card", "amount": "11"}},
	}, f.operator)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/reports/sales/summary", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum struct {
		Count int `json:"count"`
	}
	decodeData(t, rec, &sum)
	assert.Equal(t, 1, sum.Count)

	rec = f.do(t, http.MethodGet, "/reports/sales/export?format=csv", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".csv")
	assert.Contains(t, rec.Body.String(), "receipt_no")

	rec = f.do(t, http.MethodGet, "/reports/sales/export?format=pdf", nil, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerTrigger(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/system/schedulers", nil, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []domain.PosScheduler
	decodeData(t, rec, &rows)
	require.Len(t, rows, 4)

	rec = f.do(t, http.MethodPost, "/system/schedulers/999/run", nil, 0)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
