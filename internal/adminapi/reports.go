package adminapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/pos/checkout"
	"github.com/talkincode/toughpos/internal/report"
	"github.com/talkincode/toughpos/internal/webserver"
)

const (
	mimeCSV  = "text/csv; charset=utf-8"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func registerReportRoutes() {
	webserver.ApiGET("/reports/sales/summary", salesSummary)
	webserver.ApiGET("/reports/sales/export", exportSales)
}

func rangeSales(c echo.Context) (report.Range, error) {
	return report.ParseRange(c.QueryParam("start"), c.QueryParam("end"), time.Local)
}

func salesSummary(c echo.Context) error {
	r, err := rangeSales(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
	}
	top, _ := strconv.Atoi(c.QueryParam("top"))
	if top <= 0 {
		top = 10
	}
	ctx := c.Request().Context()
	sales, _, err := GetAppContext(c).Checkout().ListSales(ctx, checkout.SaleFilter{Start: r.Start, End: r.End})
	if err != nil {
		return serviceError(c, err)
	}
	sum, err := report.Summarize(ctx, r, sales, top)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, sum)
}

// exportSales writes the sales of a range as csv (default) or xlsx
func exportSales(c echo.Context) error {
	r, err := rangeSales(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
	}
	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		return fail(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or xlsx", nil)
	}
	sales, _, err := GetAppContext(c).Checkout().ListSales(c.Request().Context(), checkout.SaleFilter{Start: r.Start, End: r.End})
	if err != nil {
		return serviceError(c, err)
	}

	var buf bytes.Buffer
	mime := mimeCSV
	if format == "xlsx" {
		mime = mimeXLSX
		err = report.WriteXLSX(&buf, sales)
	} else {
		err = report.WriteCSV(&buf, sales)
	}
	if err != nil {
		return serviceError(c, err)
	}
	filename := fmt.Sprintf("sales-%s.%s", r.Start.Format("20060102"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, mime, buf.Bytes())
}
