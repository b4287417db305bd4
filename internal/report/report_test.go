package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughpos/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleSales() []domain.Sale {
	at := time.Date(2026, 4, 2, 14, 5, 0, 0, time.UTC)
	return []domain.Sale{
		{
			ReceiptNo: "R-20260402-AAAAAA", CreatedAt: at, Status: domain.SaleStatusCompleted, OperatorID: 1,
			Subtotal: d("13000"), DiscountAmount: d("1300"), TaxAmount: d("0"), TotalAmount: d("11700"),
			PaidAmount: d("12000"), ChangeAmount: d("300"), PaymentMethod: "cash", PointsEarned: 117,
			Items: []domain.SaleItem{
				{ProductID: 1, ProductName: "Beans", Quantity: 2, UnitPrice: d("5000"), TotalPrice: d("10000")},
				{ProductID: 2, VariantID: 3, ProductName: "Mug", VariantName: "Large", Quantity: 1, UnitPrice: d("3000"), TotalPrice: d("3000")},
			},
			Payments: []domain.SalePayment{{Method: "cash", Amount: d("12000")}},
		},
		{
			ReceiptNo: "R-20260402-BBBBBB", CreatedAt: at, Status: domain.SaleStatusCompleted, OperatorID: 1, CustomerID: 9,
			Subtotal: d("5000"), TaxAmount: d("500"), TotalAmount: d("5500"), PaidAmount: d("5500"), PaymentMethod: "split",
			Items:    []domain.SaleItem{{ProductID: 1, ProductName: "Beans", Quantity: 1, UnitPrice: d("5000"), TotalPrice: d("5000")}},
			Payments: []domain.SalePayment{{Method: "card", Amount: d("3000")}, {Method: "cash", Amount: d("2500")}},
		},
		{
			ReceiptNo: "R-20260402-CCCCCC", CreatedAt: at, Status: domain.SaleStatusRefunded,
			Subtotal: d("999"), TotalAmount: d("999"),
		},
	}
}

func TestRenderText(t *testing.T) {
	sale := sampleSales()[0]
	text := RenderText(&sale)
	assert.Contains(t, text, "Receipt R-20260402-AAAAAA")
	assert.Contains(t, text, "Mug (Large)")
	assert.Contains(t, text, "-1300.00")
	assert.Contains(t, text, "11700.00")
	assert.Contains(t, text, "Change")
	assert.NotContains(t, text, "REFUNDED")

	refunded := sampleSales()[2]
	assert.Contains(t, RenderText(&refunded), "REFUNDED")
}

func TestRenderJSON(t *testing.T) {
	sale := sampleSales()[0]
	b, err := RenderJSON(&sale)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"receipt_no":"R-20260402-AAAAAA"`)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSales()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "receipt_no,created_at,status"))
	assert.Contains(t, lines[1], "R-20260402-AAAAAA,2026-04-02 14:05:00,completed,,1,3,13000.00,1300.00,0.00,11700.00,cash,117")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleSales()))

	xlsx, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Receipt", xlsx.GetCellValue("Sheet1", "A1"))
	assert.Equal(t, "R-20260402-AAAAAA", xlsx.GetCellValue("Sheet1", "A2"))
	assert.Equal(t, "11700.00", xlsx.GetCellValue("Sheet1", "J2"))
}

func TestSummarize(t *testing.T) {
	r := Range{Start: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)}
	sum, err := Summarize(context.Background(), r, sampleSales(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 1, sum.Refunded)
	assert.True(t, sum.Gross.Equal(d("18000")))
	assert.True(t, sum.Discount.Equal(d("1300")))
	assert.True(t, sum.Tax.Equal(d("500")))
	assert.True(t, sum.Net.Equal(d("17200")))
	assert.Equal(t, 8600.0, sum.AverageTicket)
	assert.Equal(t, 8600.0, sum.MedianTicket)
	assert.True(t, sum.Payments["cash"].Equal(d("14200")), sum.Payments["cash"].String())
	assert.True(t, sum.Payments["card"].Equal(d("3000")))
	require.Len(t, sum.TopProducts, 1)
	assert.Equal(t, "Beans", sum.TopProducts[0].Name)
	assert.Equal(t, 3, sum.TopProducts[0].Quantity)
}

func TestSummarizeEmpty(t *testing.T) {
	sum, err := Summarize(context.Background(), Range{}, nil, 5)
	require.NoError(t, err)
	assert.Zero(t, sum.Count)
	assert.True(t, sum.Net.IsZero())
	assert.Empty(t, sum.TopProducts)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2026-04-01", "2026-04-03", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC), r.End)

	r, err = ParseRange("04/02/2026", "", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC), r.End)

	r, err = ParseRange("", "", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, r.End.Sub(r.Start))

	_, err = ParseRange("2026-04-03", "2026-04-01", time.UTC)
	assert.Error(t, err)
	_, err = ParseRange("not a date", "", time.UTC)
	assert.Error(t, err)
}
