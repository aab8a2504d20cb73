package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// fixedNow pins the normalizer clock so date defaulting is predictable.
var fixedNow = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func newTestNormalizer(opts Options) *Normalizer {
	n := NewNormalizer(opts)
	n.now = func() time.Time { return fixedNow }
	return n
}

func lineItemPayload(items ...map[string]any) map[string]any {
	data := make([]any, 0, len(items))
	for _, item := range items {
		data = append(data, item)
	}
	return map[string]any{
		"vendor_name":    "Acme Stores",
		"invoice_number": "INV-100",
		"invoice_date":   "03/15/2025",
		"data":           data,
	}
}

func TestNormalize_LineItems(t *testing.T) {
	n := newTestNormalizer(Options{})

	records, err := n.Normalize("alice", lineItemPayload(
		map[string]any{
			"product_name":     "Widget",
			"unit_price":       10.0,
			"quantity":         2.0,
			"total_price":      20.0,
			"tax_rate_percent": 5.0,
		},
	))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.OwnerID != "alice" {
		t.Errorf("Expected owner alice, got %q", rec.OwnerID)
	}
	if rec.VendorName != "Acme Stores" || rec.InvoiceNumber != "INV-100" {
		t.Errorf("Header not denormalized onto record: %+v", rec)
	}
	if got := rec.InvoiceDate.Format("2006-01-02"); got != "2025-03-15" {
		t.Errorf("Expected date 2025-03-15, got %s", got)
	}
	if rec.PeriodBucket != "2025-03" {
		t.Errorf("Expected period 2025-03, got %q", rec.PeriodBucket)
	}
	// 5% of 20.00
	if !rec.TaxAmount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected tax 1, got %s", rec.TaxAmount)
	}
	if !rec.NetAmount.Equal(decimal.NewFromInt(19)) {
		t.Errorf("Expected net 19, got %s", rec.NetAmount)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	n := newTestNormalizer(Options{})

	records, err := n.Normalize("alice", map[string]any{
		"vendor_name":    "None",
		"invoice_number": "INV-7",
		"invoice_date":   "not-a-date",
		"data": []any{
			map[string]any{
				// product_name missing, numeric fields as strings and junk
				"unit_price":  "12.50",
				"quantity":    "None",
				"total_price": nil,
			},
		},
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	rec := records[0]

	if rec.VendorName != "" {
		t.Errorf("Expected literal None to become empty, got %q", rec.VendorName)
	}
	if rec.ProductName != "INV-7" {
		t.Errorf("Expected product_name to default to invoice number, got %q", rec.ProductName)
	}
	if !rec.UnitPrice.Equal(decimal.NewFromFloat(12.50)) {
		t.Errorf("Expected numeric string coercion, got %s", rec.UnitPrice)
	}
	if !rec.Quantity.IsZero() || !rec.TotalPrice.IsZero() {
		t.Errorf("Expected unparsable numerics to default to zero")
	}
	if !rec.InvoiceDate.Equal(fixedNow) {
		t.Errorf("Expected unparsable date to default to processing date, got %s", rec.InvoiceDate)
	}
	if rec.PeriodBucket != "2025-06" {
		t.Errorf("Expected period from defaulted date, got %q", rec.PeriodBucket)
	}
}

func TestNormalize_DiscountReconciliation(t *testing.T) {
	tests := []struct {
		name      string
		unitPrice float64
		quantity  float64
		total     float64
		discount  float64
		want      string
	}{
		{name: "consistent amounts leave discount zero", unitPrice: 10, quantity: 2, total: 20, want: "0"},
		{name: "gap becomes implicit discount", unitPrice: 10, quantity: 2, total: 15, want: "5"},
		{name: "explicit discount is never overwritten", unitPrice: 10, quantity: 2, total: 15, discount: 3, want: "3"},
		{name: "gap below tolerance floors to zero", unitPrice: 10.0001, quantity: 1, total: 10, want: "0"},
		{name: "total above gross leaves discount zero", unitPrice: 10, quantity: 2, total: 25, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(Options{})
			records, err := n.Normalize("alice", lineItemPayload(map[string]any{
				"product_name": "Widget",
				"unit_price":   tt.unitPrice,
				"quantity":     tt.quantity,
				"total_price":  tt.total,
				"discount":     tt.discount,
			}))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			want, _ := decimal.NewFromString(tt.want)
			if !records[0].Discount.Equal(want) {
				t.Errorf("Expected discount %s, got %s", want, records[0].Discount)
			}
		})
	}
}

func TestNormalize_EmptyItems(t *testing.T) {
	n := newTestNormalizer(Options{})

	records, err := n.Normalize("alice", lineItemPayload())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records for empty data array, got %d", len(records))
	}
}

func TestNormalize_RequireHeaderField(t *testing.T) {
	n := newTestNormalizer(Options{RequireHeaderField: true})

	_, err := n.Normalize("alice", map[string]any{
		"vendor_name":    "",
		"invoice_number": "None",
		"invoice_date":   "garbage",
		"data":           []any{map[string]any{"total_price": 5.0}},
	})

	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected ValidationError, got: %v", err)
	}

	// One extracted header field is enough.
	records, err := n.Normalize("alice", map[string]any{
		"invoice_number": "INV-9",
		"data":           []any{map[string]any{"total_price": 5.0}},
	})
	if err != nil {
		t.Fatalf("Normalize failed with partial header: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
}

func TestNormalize_DocumentGranularity(t *testing.T) {
	n := newTestNormalizer(Options{
		Granularity: invoice.GranularityDocument,
		Tax: TwoComponentTax{
			RateAPercent: decimal.NewFromFloat(2.5),
			RateBPercent: decimal.NewFromFloat(2.5),
		},
	})

	records, err := n.Normalize("bob", map[string]any{
		"vendor_name":    "Corner Cafe",
		"invoice_number": "R-42",
		"invoice_date":   "1/2/2025",
		"subtotal":       95.0,
		"total_price":    100.0,
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected single whole-document record, got %d", len(records))
	}

	rec := records[0]
	if !rec.Subtotal.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Expected subtotal 95, got %s", rec.Subtotal)
	}
	if !rec.TaxComponentA.Equal(decimal.NewFromFloat(2.5)) || !rec.TaxComponentB.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("Expected 2.5 per component, got %s / %s", rec.TaxComponentA, rec.TaxComponentB)
	}
	if !rec.TaxAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected tax 5, got %s", rec.TaxAmount)
	}
	if got := rec.InvoiceDate.Format("2006-01-02"); got != "2025-01-02" {
		t.Errorf("Expected non-padded date to parse, got %s", got)
	}
}

func TestNormalize_ZeroRated(t *testing.T) {
	n := newTestNormalizer(Options{
		Granularity: invoice.GranularityDocument,
		Tax: TwoComponentTax{
			RateAPercent: decimal.NewFromFloat(2.5),
			RateBPercent: decimal.NewFromFloat(2.5),
		},
	})

	records, err := n.Normalize("bob", map[string]any{
		"vendor_name":    "Pharmacy",
		"invoice_number": "R-1",
		"invoice_date":   "01/05/2025",
		"total_price":    50.0,
		"zero_rated":     true,
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	rec := records[0]
	if !rec.TaxAmount.IsZero() || !rec.TaxComponentA.IsZero() || !rec.TaxComponentB.IsZero() {
		t.Errorf("Expected all tax fields zero for zero-rated record")
	}
	if !rec.NetAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected net to equal total for zero-rated record, got %s", rec.NetAmount)
	}
}
