package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOpr{},
	&SysOprLog{},
	&PosScheduler{},
	&MessageLog{},
	// Catalog
	&Category{},
	&Product{},
	&ProductVariant{},
	&ProductImage{},
	// Sales
	&Customer{},
	&Sale{},
	&SaleItem{},
	&SalePayment{},
	// Purchasing
	&Supplier{},
	&PurchaseOrder{},
	&PurchaseOrderItem{},
	&ShippingInfo{},
	&PurchaseOrderEvent{},
	// Loyalty
	&LoyaltyCustomer{},
	&PointTransaction{},
	&LoyaltyReward{},
	&Redemption{},
	&Campaign{},
}
