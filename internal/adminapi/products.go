package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughpos/internal/catalog"
	"github.com/talkincode/toughpos/internal/webserver"
)

// registerProductRoutes registers catalog endpoints
func registerProductRoutes() {
	webserver.ApiGET("/catalog/products", listProducts)
	webserver.ApiGET("/catalog/products/name-exists", productNameExists)
	webserver.ApiGET("/catalog/products/:id", getProduct)
	webserver.ApiPOST("/catalog/products", createProduct)
	webserver.ApiPOST("/catalog/validate", validateProduct)
	webserver.ApiPUT("/catalog/products/:id", updateProduct)
	webserver.ApiDELETE("/catalog/products/:id", deleteProduct)
	webserver.ApiGET("/catalog/sku-lookup", lookupSku)
	webserver.ApiGET("/catalog/low-stock", listLowStock)
	webserver.ApiPOST("/catalog/low-stock/:id/dismiss", dismissLowStock)
}

// listProducts supports q, category_id, status, sort and order
func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	categoryID, _ := strconv.ParseInt(c.QueryParam("category_id"), 10, 64)
	filter := catalog.ProductFilter{
		Query:      strings.TrimSpace(c.QueryParam("q")),
		CategoryID: categoryID,
		Status:     strings.TrimSpace(c.QueryParam("status")),
		Sort:       strings.TrimSpace(c.QueryParam("sort")),
		Order:      strings.ToUpper(strings.TrimSpace(c.QueryParam("order"))),
		Page:       page,
		PageSize:   pageSize,
	}
	rows, total, err := GetAppContext(c).Catalog().ListProducts(c.Request().Context(), filter)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	p, err := GetAppContext(c).Catalog().GetProduct(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, p)
}

// productNameExists backs the live uniqueness check of the product form
func productNameExists(c echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
	}
	exclude, _ := strconv.ParseInt(c.QueryParam("exclude_id"), 10, 64)
	exists, err := GetAppContext(c).Catalog().NameExists(c.Request().Context(), name, exclude)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]bool{"exists": exists})
}

// validateProduct runs the form checks without saving
func validateProduct(c echo.Context) error {
	var form catalog.ProductForm
	if err := c.Bind(&form); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	form.Normalize()
	if errs := catalog.Validate(&form); len(errs) > 0 {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", errs)
	}
	return ok(c, map[string]bool{"valid": true})
}

func createProduct(c echo.Context) error {
	var form catalog.ProductForm
	if err := c.Bind(&form); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	p, warnings, err := GetAppContext(c).Catalog().CreateProduct(c.Request().Context(), &form)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, Response{Data: map[string]interface{}{
		"product":  p,
		"warnings": warnings,
	}})
}

func updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var form catalog.ProductForm
	if err := c.Bind(&form); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	p, err := GetAppContext(c).Catalog().UpdateProduct(c.Request().Context(), id, &form)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetAppContext(c).Catalog().DeleteProduct(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]interface{}{"id": strconv.FormatInt(id, 10)})
}

// lookupSku answers barcode scans and sku prefix searches from the in-memory index
func lookupSku(c echo.Context) error {
	prefix := strings.TrimSpace(c.QueryParam("prefix"))
	if prefix == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "prefix is required", nil)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return ok(c, GetAppContext(c).Catalog().LookupSKU(prefix, limit))
}

func listLowStock(c echo.Context) error {
	items, err := GetAppContext(c).Catalog().LowStock(c.Request().Context(), operatorID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, items)
}

// dismissLowStock hides a product from the caller's low stock list until tomorrow
func dismissLowStock(c echo.Context) error {
	opr := operatorID(c)
	if opr == 0 {
		return missingOperator(c)
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetAppContext(c).Catalog().DismissLowStock(opr, id); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
