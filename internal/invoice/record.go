package invoice

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity selects which payload shape the pipeline expects from the
// model: one record per line item, or one record per whole document.
type Granularity int

const (
	// GranularityLineItem expects a header plus a "data" array of items.
	GranularityLineItem Granularity = iota

	// GranularityDocument expects a single receipt-level object with
	// subtotal and tax components and no item array.
	GranularityDocument
)

// DefaultOwner is the owner ID used by single-user deployments that have
// no tenant concept.
const DefaultOwner = "local"

// PeriodUnknown is the bucket assigned to records whose invoice date
// could not be determined. Such records still count toward totals.
const PeriodUnknown = "unknown"

// Header carries the invoice-level fields the model extracts once per
// document. It is never persisted on its own; it is denormalized onto
// every record so records stand alone for aggregation.
type Header struct {
	VendorName    string    `json:"vendor_name"`
	InvoiceNumber string    `json:"invoice_number"`
	InvoiceDate   time.Time `json:"invoice_date"`
}

// Record is the persisted unit: one invoice line item (or one whole
// receipt in document granularity) with its header copy, extracted
// amounts and derived fields.
type Record struct {
	OwnerID string `json:"owner_id"`

	VendorName    string    `json:"vendor_name"`
	InvoiceNumber string    `json:"invoice_number"`
	InvoiceDate   time.Time `json:"invoice_date"`

	ProductName string `json:"product_name"`

	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Discount       decimal.Decimal `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`

	// Subtotal is only populated in document granularity.
	Subtotal decimal.Decimal `json:"subtotal"`

	// ZeroRated marks products in the zero-rated category; the
	// two-component tax policy skips both components for them.
	ZeroRated bool `json:"zero_rated"`

	// Derived fields, recomputed on every normalization. TaxAmount is
	// never trusted from the source payload.
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TaxComponentA decimal.Decimal `json:"tax_component_a"`
	TaxComponentB decimal.Decimal `json:"tax_component_b"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	PeriodBucket  string          `json:"period_bucket"`
}

// Key identifies a record for upsert matching. In document granularity
// the product name is excluded from the key.
type Key struct {
	OwnerID       string
	InvoiceNumber string
	InvoiceDate   time.Time
	VendorName    string
	ProductName   string
}

// Key returns the identity key for the record under the given granularity.
func (r *Record) Key(g Granularity) Key {
	k := Key{
		OwnerID:       r.OwnerID,
		InvoiceNumber: r.InvoiceNumber,
		InvoiceDate:   r.InvoiceDate,
		VendorName:    r.VendorName,
	}
	if g == GranularityLineItem {
		k.ProductName = r.ProductName
	}
	return k
}

// keySep separates key fields in the encoded form. The unit separator
// cannot appear in extracted text, so encoded keys never collide.
const keySep = "\x1f"

// Encode renders the key as a byte slice usable as a store key.
func (k Key) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(k.InvoiceNumber)
	b.WriteString(keySep)
	b.WriteString(k.InvoiceDate.Format("2006-01-02"))
	b.WriteString(keySep)
	b.WriteString(k.VendorName)
	b.WriteString(keySep)
	b.WriteString(k.ProductName)
	return b.Bytes()
}

// PeriodOf truncates a date to its year-month bucket. The zero time maps
// to PeriodUnknown so undated records are grouped rather than dropped.
func PeriodOf(t time.Time) string {
	if t.IsZero() {
		return PeriodUnknown
	}
	return t.Format("2006-01")
}
