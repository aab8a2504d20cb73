package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// Normalizer turns a parsed payload into canonical records: defaulted
// fields, denormalized header, derived tax and discount amounts.
type Normalizer struct {
	opts Options

	// now is injectable so date defaulting is deterministic in tests.
	now func() time.Time
}

// NewNormalizer creates a normalizer for the given options.
func NewNormalizer(opts Options) *Normalizer {
	return &Normalizer{opts: opts, now: time.Now}
}

// Normalize produces canonical records from a parsed payload for one
// owner. Line-item granularity reads the header plus the "data" array;
// document granularity reads the whole-receipt shape. An empty "data"
// array yields zero records and no error.
func (n *Normalizer) Normalize(ownerID string, payload map[string]any) ([]*invoice.Record, error) {
	header, headerPresent := n.normalizeHeader(payload)

	if n.opts.RequireHeaderField && !headerPresent {
		return nil, &ValidationError{
			Reason: "header is missing vendor name, invoice number and date",
		}
	}

	if n.opts.Granularity == invoice.GranularityDocument {
		rec := n.normalizeItem(ownerID, header, payload)
		rec.Subtotal = decimalField(payload, "subtotal")
		return []*invoice.Record{rec}, nil
	}

	items, _ := payload["data"].([]any)
	records := make([]*invoice.Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, n.normalizeItem(ownerID, header, obj))
	}
	return records, nil
}

// normalizeHeader reads the invoice-level fields. The second return
// value reports whether at least one of vendor, number or date was
// actually extracted (the strictness policy needs to know).
func (n *Normalizer) normalizeHeader(payload map[string]any) (invoice.Header, bool) {
	vendor := stringField(payload, "vendor_name")
	number := stringField(payload, "invoice_number")

	rawDate := stringField(payload, "invoice_date")
	date, dateOK := parseInvoiceDate(rawDate)
	if !dateOK {
		// Absent or unparsable dates default to the processing date.
		date = n.now()
	}

	header := invoice.Header{
		VendorName:    vendor,
		InvoiceNumber: number,
		InvoiceDate:   date,
	}
	return header, vendor != "" || number != "" || dateOK
}

// normalizeItem builds one canonical record from an item object (or the
// whole payload in document granularity) and the denormalized header.
func (n *Normalizer) normalizeItem(ownerID string, header invoice.Header, obj map[string]any) *invoice.Record {
	rec := &invoice.Record{
		OwnerID:       ownerID,
		VendorName:    header.VendorName,
		InvoiceNumber: header.InvoiceNumber,
		InvoiceDate:   header.InvoiceDate,

		ProductName:    stringField(obj, "product_name"),
		UnitPrice:      decimalField(obj, "unit_price"),
		Quantity:       decimalField(obj, "quantity"),
		TotalPrice:     decimalField(obj, "total_price"),
		Discount:       decimalField(obj, "discount"),
		TaxRatePercent: decimalField(obj, "tax_rate_percent"),
		ZeroRated:      boolField(obj, "zero_rated"),
	}

	if rec.ProductName == "" {
		rec.ProductName = header.InvoiceNumber
	}

	n.reconcileDiscount(rec)
	n.opts.tax().Apply(rec)
	rec.PeriodBucket = invoice.PeriodOf(rec.InvoiceDate)

	return rec
}

// reconcileDiscount infers an implicit discount when unit_price*quantity
// exceeds total_price and no discount was extracted. Gaps below the
// tolerance are floored to zero as floating-point noise. An explicitly
// extracted non-zero discount is never overwritten.
func (n *Normalizer) reconcileDiscount(rec *invoice.Record) {
	if !rec.Discount.IsZero() {
		return
	}
	gross := rec.UnitPrice.Mul(rec.Quantity)
	if gross.LessThanOrEqual(rec.TotalPrice) {
		return
	}
	gap := gross.Sub(rec.TotalPrice)
	if gap.LessThan(n.opts.tolerance()) {
		return
	}
	rec.Discount = gap
}

// invoiceDateFormats are the accepted external date layouts. The prompt
// asks for MM/DD/YYYY; the model does not always zero-pad.
var invoiceDateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

func parseInvoiceDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range invoiceDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stringField reads a string field, treating absent, non-string, and
// the literal "None"/"null" the model sometimes emits as empty.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// decimalField reads a numeric field, defaulting absent or non-numeric
// values to zero. The model emits both JSON numbers and numeric strings.
func decimalField(m map[string]any, key string) decimal.Decimal {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// boolField reads a boolean field, tolerating the string forms the
// model produces.
func boolField(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	default:
		return false
	}
}
