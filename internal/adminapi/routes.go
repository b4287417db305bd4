package adminapi

// Init registers every admin api route with the webserver
func Init() {
	registerProductRoutes()
	registerCustomerRoutes()
	registerSupplierRoutes()
	registerPosRoutes()
	registerPurchaseRoutes()
	registerLoyaltyRoutes()
	registerReportRoutes()
	registerSettingsRoutes()
	registerSchedulerRoutes()
}
