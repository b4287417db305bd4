package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/webserver"
)

func registerSettingsRoutes() {
	webserver.ApiGET("/system/settings", listSettings)
	webserver.ApiPUT("/system/settings", updateSettings)
}

func listSettings(c echo.Context) error {
	return ok(c, GetAppContext(c).ConfigMgr().Values())
}

// updateSettings accepts a flat map keyed by category.name
func updateSettings(c echo.Context) error {
	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", err.Error())
	}
	if len(payload) == 0 {
		return fail(c, http.StatusBadRequest, "EMPTY_SETTINGS", "No settings given", nil)
	}
	appCtx := GetAppContext(c)
	if err := appCtx.SaveSettings(payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_SETTINGS", err.Error(), nil)
	}
	return ok(c, appCtx.ConfigMgr().Values())
}
