package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// DefaultTolerance is the gap below which a unit_price*quantity vs
// total_price mismatch is treated as floating-point noise rather than
// an implicit discount.
var DefaultTolerance = decimal.NewFromFloat(0.001)

// TaxPolicy derives the tax fields of a record from its extracted
// amounts. Tax is always recomputed here - the model is not asked for
// it and any tax value in the payload is ignored.
type TaxPolicy interface {
	Apply(rec *invoice.Record)
}

// FlatRateTax applies the extracted percentage rate to the total price.
// This is the default policy for per-line-item invoices.
type FlatRateTax struct{}

func (FlatRateTax) Apply(rec *invoice.Record) {
	rec.TaxAmount = rec.TotalPrice.Mul(rec.TaxRatePercent).Div(decimal.NewFromInt(100))
	rec.TaxComponentA = decimal.Zero
	rec.TaxComponentB = decimal.Zero
	rec.NetAmount = rec.TotalPrice.Sub(rec.TaxAmount)
}

// TwoComponentTax applies two fixed-rate components to the total price,
// unless the record is in the zero-rated category, in which case both
// components are zero and the net amount equals the total. The exact
// rates vary per deployment and are configuration, not law.
type TwoComponentTax struct {
	RateAPercent decimal.Decimal
	RateBPercent decimal.Decimal
}

func (t TwoComponentTax) Apply(rec *invoice.Record) {
	if rec.ZeroRated {
		rec.TaxComponentA = decimal.Zero
		rec.TaxComponentB = decimal.Zero
		rec.TaxAmount = decimal.Zero
		rec.NetAmount = rec.TotalPrice
		return
	}

	hundred := decimal.NewFromInt(100)
	rec.TaxComponentA = rec.TotalPrice.Mul(t.RateAPercent).Div(hundred)
	rec.TaxComponentB = rec.TotalPrice.Mul(t.RateBPercent).Div(hundred)
	rec.TaxAmount = rec.TaxComponentA.Add(rec.TaxComponentB)
	rec.NetAmount = rec.TotalPrice.Sub(rec.TaxAmount)
}

// Options parameterizes the pipeline so the deployment variants
// (local-file, batch-web, multi-tenant) share one implementation.
type Options struct {
	// Granularity selects the payload shape and the identity-key shape.
	Granularity invoice.Granularity

	// RequireHeaderField rejects documents whose header is missing all
	// of vendor, invoice number and date. Off by default; deployments
	// disagree on strictness.
	RequireHeaderField bool

	// Tolerance for discount reconciliation. Zero means DefaultTolerance.
	Tolerance decimal.Decimal

	// Tax policy. Nil means FlatRateTax.
	Tax TaxPolicy

	// GroupByVendor adds the vendor dimension to summary group rows.
	GroupByVendor bool
}

func (o Options) tolerance() decimal.Decimal {
	if o.Tolerance.IsZero() {
		return DefaultTolerance
	}
	return o.Tolerance
}

func (o Options) tax() TaxPolicy {
	if o.Tax == nil {
		return FlatRateTax{}
	}
	return o.Tax
}

// DocumentResult reports the outcome of one successfully processed
// document.
type DocumentResult struct {
	Filename string `json:"filename"`
	Records  int    `json:"records"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
}

// DocumentFailure reports one document that could not be processed.
type DocumentFailure struct {
	Filename string      `json:"filename"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

// BatchResult reports the outcome of a batch: every document appears in
// exactly one of the two lists.
type BatchResult struct {
	Processed []DocumentResult  `json:"processed"`
	Failed    []DocumentFailure `json:"failed"`
}
