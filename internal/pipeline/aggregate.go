package pipeline

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// Group keys for the synthetic summary rows. Plain group rows carry the
// vendor name (or GroupKeyAll when vendor grouping is off).
const (
	GroupKeyAll        = "ALL"
	GroupKeyMonthTotal = "Total for Month"
	GroupKeyGrandTotal = "All Vendors"
)

// SummaryRow is one line of the month roll-up: a per-group row, a
// per-period total, or the grand total.
type SummaryRow struct {
	PeriodBucket string          `json:"period_bucket"`
	GroupKey     string          `json:"group_key"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Discount     decimal.Decimal `json:"discount"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
}

// Summary is an ordered roll-up ready for rendering: periods ascending
// with the unknown bucket last, each period's group rows followed by
// its period total, and the grand total at the end.
type Summary struct {
	Rows []SummaryRow `json:"rows"`
}

func (s *SummaryRow) add(rec *invoice.Record) {
	s.Quantity = s.Quantity.Add(rec.Quantity)
	s.TotalPrice = s.TotalPrice.Add(rec.TotalPrice)
	s.Discount = s.Discount.Add(rec.Discount)
	s.TaxAmount = s.TaxAmount.Add(rec.TaxAmount)
}

// Aggregate rolls records up by month and group. With byVendor the group
// dimension is the vendor name; without it every period has a single
// group row keyed GroupKeyAll. An empty record set yields nil, so
// callers and renderers never produce a zero-filled summary.
func Aggregate(records []*invoice.Record, byVendor bool) *Summary {
	if len(records) == 0 {
		return nil
	}

	type periodAgg struct {
		groups map[string]*SummaryRow
		total  SummaryRow
	}
	periods := make(map[string]*periodAgg)

	grand := SummaryRow{PeriodBucket: "", GroupKey: GroupKeyGrandTotal}

	for _, rec := range records {
		bucket := rec.PeriodBucket
		if bucket == "" {
			bucket = invoice.PeriodOf(rec.InvoiceDate)
		}

		p, ok := periods[bucket]
		if !ok {
			p = &periodAgg{
				groups: make(map[string]*SummaryRow),
				total:  SummaryRow{PeriodBucket: bucket, GroupKey: GroupKeyMonthTotal},
			}
			periods[bucket] = p
		}

		group := GroupKeyAll
		if byVendor {
			group = rec.VendorName
		}
		row, ok := p.groups[group]
		if !ok {
			row = &SummaryRow{PeriodBucket: bucket, GroupKey: group}
			p.groups[group] = row
		}

		row.add(rec)
		p.total.add(rec)
		grand.add(rec)
	}

	buckets := make([]string, 0, len(periods))
	for bucket := range periods {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		// Unknown sorts after every real year-month.
		if buckets[i] == invoice.PeriodUnknown {
			return false
		}
		if buckets[j] == invoice.PeriodUnknown {
			return true
		}
		return buckets[i] < buckets[j]
	})

	var rows []SummaryRow
	for _, bucket := range buckets {
		p := periods[bucket]

		groups := make([]string, 0, len(p.groups))
		for g := range p.groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)

		for _, g := range groups {
			rows = append(rows, *p.groups[g])
		}
		rows = append(rows, p.total)
	}
	rows = append(rows, grand)

	return &Summary{Rows: rows}
}
