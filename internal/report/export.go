package report

import (
	"io"
	"strconv"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/talkincode/toughpos/internal/domain"
)

// SaleRow is the flat export shape of a sale
type SaleRow struct {
	ReceiptNo     string `csv:"receipt_no"`
	CreatedAt     string `csv:"created_at"`
	Status        string `csv:"status"`
	CustomerID    string `csv:"customer_id"`
	OperatorID    string `csv:"operator_id"`
	Items         int    `csv:"items"`
	Subtotal      string `csv:"subtotal"`
	Discount      string `csv:"discount"`
	Tax           string `csv:"tax"`
	Total         string `csv:"total"`
	PaymentMethod string `csv:"payment_method"`
	PointsEarned  int64  `csv:"points_earned"`
}

var saleHeaders = []string{
	"Receipt", "Date", "Status", "Customer", "Operator", "Items",
	"Subtotal", "Discount", "Tax", "Total", "Payment", "Points",
}

func ToRows(sales []domain.Sale) []*SaleRow {
	rows := make([]*SaleRow, 0, len(sales))
	for _, s := range sales {
		qty := 0
		for _, it := range s.Items {
			qty += it.Quantity
		}
		customer := ""
		if s.CustomerID != 0 {
			customer = strconv.FormatInt(s.CustomerID, 10)
		}
		rows = append(rows, &SaleRow{
			ReceiptNo:     s.ReceiptNo,
			CreatedAt:     s.CreatedAt.Format("2006-01-02 15:04:05"),
			Status:        s.Status,
			CustomerID:    customer,
			OperatorID:    strconv.FormatInt(s.OperatorID, 10),
			Items:         qty,
			Subtotal:      s.Subtotal.StringFixed(2),
			Discount:      s.DiscountAmount.StringFixed(2),
			Tax:           s.TaxAmount.StringFixed(2),
			Total:         s.TotalAmount.StringFixed(2),
			PaymentMethod: s.PaymentMethod,
			PointsEarned:  s.PointsEarned,
		})
	}
	return rows
}

// WriteCSV exports sales as CSV with a header line
func WriteCSV(w io.Writer, sales []domain.Sale) error {
	return gocsv.Marshal(ToRows(sales), w)
}

// WriteXLSX exports sales as a single sheet workbook
func WriteXLSX(w io.Writer, sales []domain.Sale) error {
	const sheet = "Sheet1"
	xlsx := excelize.NewFile()
	for i, h := range saleHeaders {
		xlsx.SetCellValue(sheet, excelize.ToAlphaString(i)+"1", h)
	}
	for r, row := range ToRows(sales) {
		values := []interface{}{
			row.ReceiptNo, row.CreatedAt, row.Status, row.CustomerID, row.OperatorID, row.Items,
			row.Subtotal, row.Discount, row.Tax, row.Total, row.PaymentMethod, row.PointsEarned,
		}
		for c, v := range values {
			xlsx.SetCellValue(sheet, excelize.ToAlphaString(c)+strconv.Itoa(r+2), v)
		}
	}
	return xlsx.Write(w)
}
