package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"vendor-desk/models"
	"vendor-desk/utils"
)

// SortPolicy orders the groups produced by one aggregation pass. It receives
// groups in first-seen order and must return them in display order.
type SortPolicy func(groups []models.OrderGroup) []models.OrderGroup

// InsertionOrder keeps first-seen order.
func InsertionOrder(groups []models.OrderGroup) []models.OrderGroup { return groups }

// NewestFirst reverses first-seen order. Used for active orders.
func NewestFirst(groups []models.OrderGroup) []models.OrderGroup {
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return groups
}

// ByCompletedAtDesc sorts completed orders by completion time, newest first.
// Groups without a parseable timestamp go last, keeping their relative order.
func ByCompletedAtDesc(groups []models.OrderGroup) []models.OrderGroup {
	sort.SliceStable(groups, func(i, j int) bool {
		ti, okI := parseTimestamp(groups[i].CompletedAt)
		tj, okJ := parseTimestamp(groups[j].CompletedAt)
		switch {
		case okI && okJ:
			return ti.After(tj)
		default:
			return okI && !okJ
		}
	})
	return groups
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Aggregator groups canonical line items by order id.
type Aggregator struct {
	normalizer *Normalizer
	logger     *utils.Logger
}

// NewAggregator creates an Aggregator using the given normalizer.
func NewAggregator(normalizer *Normalizer, logger *utils.Logger) *Aggregator {
	return &Aggregator{normalizer: normalizer, logger: logger}
}

type groupAcc struct {
	group         models.OrderGroup
	totalPrice    decimal.Decimal
	originalTotal decimal.Decimal
}

// Aggregate builds one OrderGroup per order id in a single pass over records.
// The first record of an order seeds its scalar fields; every record adds a line
// item in input order. The result is never nil.
func (a *Aggregator) Aggregate(records []models.RawOrderRecord, policy SortPolicy) []models.OrderGroup {
	index := make(map[string]int)
	accs := make([]*groupAcc, 0)

	for _, r := range records {
		header := a.normalizer.NormalizeHeader(r)
		item := a.normalizer.Normalize(r)

		pos, seen := index[header.OrderID]
		if !seen {
			pos = len(accs)
			index[header.OrderID] = pos
			accs = append(accs, &groupAcc{group: models.OrderGroup{OrderHeader: header}})
		}
		acc := accs[pos]

		price := decimal.NewFromFloat(item.Price)
		acc.group.Items = append(acc.group.Items, item)
		acc.group.TotalQuantity += item.Quantity
		acc.totalPrice = acc.totalPrice.Add(price)
		acc.originalTotal = acc.originalTotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	groups := make([]models.OrderGroup, 0, len(accs))
	for _, acc := range accs {
		acc.group.TotalPrice = finiteAmount(acc.totalPrice)
		acc.group.OriginalTotal = finiteAmount(acc.originalTotal.Round(0))
		groups = append(groups, acc.group)
	}

	if policy != nil {
		groups = policy(groups)
	}

	if a.logger != nil {
		a.logger.Debug("[aggregator] %d records → %d orders", len(records), len(groups))
	}
	return groups
}

// Print writes a plain-text summary of groups, one block per order.
func (a *Aggregator) Print(w io.Writer, title string, groups []models.OrderGroup) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n%s\n  %s (%d)\n%s\n", sep, title, len(groups), sep)
	if len(groups) == 0 {
		fmt.Fprintf(w, "  No orders\n\n")
		return
	}

	for _, g := range groups {
		fmt.Fprintf(w, "  #%s  %-12s customer %s\n", g.OrderID, g.Status, g.UserID)
		fmt.Fprintf(w, "  %s\n", thin)
		for _, item := range g.Items {
			fmt.Fprintf(w, "  %-34s x%-3d ₹%.2f\n", truncate(item.ItemName, 34), item.Quantity, item.Price)
		}
		fmt.Fprintf(w, "  Items: %d | Original total: ₹%.0f", g.TotalQuantity, g.OriginalTotal)
		if g.Coupon != "" {
			fmt.Fprintf(w, " | Coupon %s saved ₹%.0f", g.Coupon, g.Savings())
		}
		fmt.Fprintf(w, " | Final: ₹%.2f\n\n", g.FinalPrice)
	}
}

// finiteAmount converts a total to float64, saturating at math.MaxFloat64 so
// sums of huge prices stay encodable.
func finiteAmount(d decimal.Decimal) float64 {
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
