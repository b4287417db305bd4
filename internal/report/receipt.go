package report

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/talkincode/toughpos/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const receiptWidth = 40

// RenderText formats a sale as a plain text receipt
func RenderText(sale *domain.Sale) string {
	var b strings.Builder
	line := strings.Repeat("-", receiptWidth)
	fmt.Fprintf(&b, "Receipt %s\n", sale.ReceiptNo)
	fmt.Fprintf(&b, "%s\n", sale.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(line + "\n")
	for _, it := range sale.Items {
		name := it.ProductName
		if it.VariantName != "" {
			name += " (" + it.VariantName + ")"
		}
		fmt.Fprintf(&b, "%s\n", name)
		left := fmt.Sprintf("  %d x %s", it.Quantity, it.UnitPrice.StringFixed(2))
		b.WriteString(left + pad(it.TotalPrice.StringFixed(2), receiptWidth-len(left)) + "\n")
	}
	b.WriteString(line + "\n")
	row(&b, "Subtotal", sale.Subtotal.StringFixed(2))
	if sale.DiscountAmount.IsPositive() {
		row(&b, "Discount", "-"+sale.DiscountAmount.StringFixed(2))
	}
	if sale.TaxAmount.IsPositive() {
		row(&b, "Tax", sale.TaxAmount.StringFixed(2))
	}
	row(&b, "Total", sale.TotalAmount.StringFixed(2))
	for _, p := range sale.Payments {
		row(&b, "Paid "+p.Method, p.Amount.StringFixed(2))
	}
	if sale.ChangeAmount.IsPositive() {
		row(&b, "Change", sale.ChangeAmount.StringFixed(2))
	}
	if sale.PointsEarned > 0 {
		row(&b, "Points earned", fmt.Sprint(sale.PointsEarned))
	}
	if sale.Status == domain.SaleStatusRefunded {
		b.WriteString(line + "\n")
		b.WriteString("REFUNDED\n")
	}
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s%s\n", label, pad(value, receiptWidth-len(label)))
}

func pad(s string, width int) string {
	if width <= len(s) {
		return " " + s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// RenderJSON returns the receipt as JSON
func RenderJSON(sale *domain.Sale) ([]byte, error) {
	return json.Marshal(sale)
}
