package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Range is a half-open time interval [Start, End)
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// ParseRange parses loosely formatted dates. A date-only end covers that whole day,
// empty values default to today.
func ParseRange(start, end string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	r := Range{Start: today, End: today.AddDate(0, 0, 1)}

	if s := strings.TrimSpace(start); s != "" {
		t, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return r, fmt.Errorf("invalid start %q: %w", s, err)
		}
		r.Start = t
		r.End = t.AddDate(0, 0, 1)
	}
	if e := strings.TrimSpace(end); e != "" {
		t, err := dateparse.ParseIn(e, loc)
		if err != nil {
			return r, fmt.Errorf("invalid end %q: %w", e, err)
		}
		if isMidnight(t) {
			t = t.AddDate(0, 0, 1)
		}
		r.End = t
	}
	if !r.End.After(r.Start) {
		return r, fmt.Errorf("end must be after start")
	}
	return r, nil
}

type ProductSales struct {
	ProductID int64           `json:"product_id,string"`
	VariantID int64           `json:"variant_id,string"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type Summary struct {
	Range         Range                      `json:"range"`
	Count         int                        `json:"count"`
	Refunded      int                        `json:"refunded"`
	Gross         decimal.Decimal            `json:"gross"`
	Discount      decimal.Decimal            `json:"discount"`
	Tax           decimal.Decimal            `json:"tax"`
	Net           decimal.Decimal            `json:"net"`
	AverageTicket float64                    `json:"average_ticket"`
	MedianTicket  float64                    `json:"median_ticket"`
	Payments      map[string]decimal.Decimal `json:"payments"`
	TopProducts   []ProductSales             `json:"top_products"`
}

// Summarize aggregates the completed sales of a range, refunded sales are only counted
func Summarize(ctx context.Context, r Range, sales []domain.Sale, topN int) (*Summary, error) {
	completed := make([]domain.Sale, 0, len(sales))
	sum := &Summary{Range: r, Payments: map[string]decimal.Decimal{}}
	for _, s := range sales {
		if s.Status == domain.SaleStatusRefunded {
			sum.Refunded++
			continue
		}
		completed = append(completed, s)
	}
	sum.Count = len(completed)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		gross, disc, tax, net := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		for _, s := range completed {
			gross = gross.Add(s.Subtotal)
			disc = disc.Add(s.DiscountAmount)
			tax = tax.Add(s.TaxAmount)
			net = net.Add(s.TotalAmount)
		}
		sum.Gross, sum.Discount, sum.Tax, sum.Net = gross, disc, tax, net
		return nil
	})
	g.Go(func() error {
		if len(completed) == 0 {
			return nil
		}
		tickets := make(stats.Float64Data, 0, len(completed))
		for _, s := range completed {
			tickets = append(tickets, s.TotalAmount.InexactFloat64())
		}
		mean, err := stats.Mean(tickets)
		if err != nil {
			return err
		}
		median, err := stats.Median(tickets)
		if err != nil {
			return err
		}
		sum.AverageTicket, _ = stats.Round(mean, 2)
		sum.MedianTicket, _ = stats.Round(median, 2)
		return nil
	})
	g.Go(func() error {
		for _, s := range completed {
			for _, p := range s.Payments {
				sum.Payments[p.Method] = sum.Payments[p.Method].Add(p.Amount)
			}
			if s.ChangeAmount.IsPositive() {
				sum.Payments[domain.PaymentCash] = sum.Payments[domain.PaymentCash].Sub(s.ChangeAmount)
			}
		}
		return nil
	})
	g.Go(func() error {
		sum.TopProducts = topProducts(completed, topN)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sum, nil
}

func topProducts(sales []domain.Sale, n int) []ProductSales {
	byKey := map[[2]int64]*ProductSales{}
	for _, s := range sales {
		for _, it := range s.Items {
			key := [2]int64{it.ProductID, it.VariantID}
			ps, ok := byKey[key]
			if !ok {
				name := it.ProductName
				if it.VariantName != "" {
					name += " / " + it.VariantName
				}
				ps = &ProductSales{ProductID: it.ProductID, VariantID: it.VariantID, Name: name}
				byKey[key] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(it.TotalPrice)
		}
	}
	out := make([]ProductSales, 0, len(byKey))
	for _, ps := range byKey {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
