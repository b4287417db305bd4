package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/loyalty"
	"github.com/talkincode/toughpos/internal/webserver"
)

type adjustPayload struct {
	Points int64  `json:"points" validate:"required"`
	Note   string `json:"note" validate:"required,max=255"`
}

type earnPayload struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=64"`
}

type redeemPayload struct {
	Points    int64  `json:"points" validate:"gt=0"`
	Reference string `json:"reference" validate:"max=64"`
}

func registerLoyaltyRoutes() {
	webserver.ApiGET("/loyalty/customers", listLoyaltyAccounts)
	webserver.ApiGET("/loyalty/customers/:id", getLoyaltyAccount)
	webserver.ApiPOST("/loyalty/customers/:id", enrollCustomer)
	webserver.ApiPOST("/loyalty/customers/:id/earn", earnPoints)
	webserver.ApiPOST("/loyalty/customers/:id/redeem", redeemPoints)
	webserver.ApiPOST("/loyalty/customers/:id/adjust", adjustPoints)
	webserver.ApiPOST("/loyalty/customers/:id/reconcile", reconcileAccount)
	webserver.ApiGET("/loyalty/customers/:id/transactions", loyaltyHistory)
	webserver.ApiPOST("/loyalty/customers/:id/rewards/:rewardId/redeem", redeemReward)
	webserver.ApiGET("/loyalty/rewards", listRewards)
	webserver.ApiPOST("/loyalty/rewards", createReward)
	webserver.ApiGET("/loyalty/campaigns", listCampaigns)
	webserver.ApiPOST("/loyalty/campaigns", createCampaign)
	webserver.ApiPOST("/loyalty/campaigns/:id/send", sendCampaign)
}

// listLoyaltyAccounts filters by segment: vip, loyal, regular or new
func listLoyaltyAccounts(c echo.Context) error {
	rows, err := GetAppContext(c).Loyalty().ListAccounts(c.Request().Context(), c.QueryParam("segment"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, rows)
}

func getLoyaltyAccount(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	acct, err := GetAppContext(c).Loyalty().GetAccount(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]interface{}{
		"account": acct,
		"segment": loyalty.Segment(acct),
	})
}

func enrollCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	acct, err := GetAppContext(c).Loyalty().Enroll(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, acct)
}

func loyaltyHistory(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := GetAppContext(c).Loyalty().History(c.Request().Context(), id, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, rows)
}

func adjustPoints(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var payload adjustPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse adjustment", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	acct, err := GetAppContext(c).Loyalty().Adjust(c.Request().Context(), id, payload.Points, payload.Note)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, acct)
}

// earnPoints books points for a purchase made outside the register
func earnPoints(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var payload earnPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse amount", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if !payload.Amount.IsPositive() {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", map[string]string{"amount": "gt"})
	}
	svc := GetAppContext(c).Loyalty()
	points, err := svc.Earn(c.Request().Context(), id, payload.Amount, payload.Reference)
	if err != nil {
		return serviceError(c, err)
	}
	acct, err := svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]interface{}{"earned": points, "account": acct})
}

func redeemPoints(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var payload redeemPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse redemption", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	acct, err := GetAppContext(c).Loyalty().Redeem(c.Request().Context(), id, payload.Points, payload.Reference)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, acct)
}

func redeemReward(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	rewardID, err := parseIDParam(c, "rewardId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid reward ID", nil)
	}
	red, err := GetAppContext(c).Loyalty().RedeemReward(c.Request().Context(), id, rewardID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, red)
}

func reconcileAccount(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	changed, err := GetAppContext(c).Loyalty().Reconcile(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]bool{"changed": changed})
}

func listRewards(c echo.Context) error {
	rows, err := GetAppContext(c).Loyalty().Rewards(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, rows)
}

func createReward(c echo.Context) error {
	var form loyalty.RewardForm
	if err := c.Bind(&form); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse reward", err.Error())
	}
	if err := c.Validate(&form); err != nil {
		return handleValidationError(c, err)
	}
	reward, err := GetAppContext(c).Loyalty().CreateReward(c.Request().Context(), &form)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, Response{Data: reward})
}

func listCampaigns(c echo.Context) error {
	rows, err := GetAppContext(c).Loyalty().Campaigns(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, rows)
}

func createCampaign(c echo.Context) error {
	var form loyalty.CampaignForm
	if err := c.Bind(&form); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse campaign", err.Error())
	}
	if err := c.Validate(&form); err != nil {
		return handleValidationError(c, err)
	}
	campaign, err := GetAppContext(c).Loyalty().CreateCampaign(c.Request().Context(), &form)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, Response{Data: campaign})
}

// sendCampaign delivers a draft campaign to its segment
func sendCampaign(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID", nil)
	}
	campaign, err := GetAppContext(c).Loyalty().SendCampaign(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, campaign)
}
