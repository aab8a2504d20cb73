package export

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/pipeline"
)

// Sheet names in the generated workbook.
const (
	RecordsSheet = "Product Details"
	SummarySheet = "Summary by Month"
)

var recordHeader = []any{
	"Invoice Date", "Invoice Number", "Vendor", "Product",
	"Unit Price", "Quantity", "Total Price", "Discount",
	"Tax Rate %", "Tax Amount", "Period",
}

var summaryHeader = []any{
	"Period", "Vendor", "Quantity", "Total Price", "Discount", "Tax Amount",
}

// Workbook renders records and the month roll-up into an xlsx file with
// the two fixed sheets.
type Workbook struct {
	f *excelize.File
}

// NewWorkbook creates an empty workbook with both sheets present.
func NewWorkbook() (*Workbook, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), RecordsSheet); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("export: create sheet %s: %w", SummarySheet, err)
	}

	return &Workbook{f: f}, nil
}

// OpenWorkbook opens an existing workbook for appending. A missing file
// falls back to a fresh workbook so the first export and later exports
// take the same path.
func OpenWorkbook(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewWorkbook()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: open workbook: %w", err)
	}

	w := &Workbook{f: f}
	for _, name := range []string{RecordsSheet, SummarySheet} {
		idx, err := f.GetSheetIndex(name)
		if err != nil {
			return nil, fmt.Errorf("export: sheet index %s: %w", name, err)
		}
		if idx == -1 {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("export: create sheet %s: %w", name, err)
			}
		}
	}
	return w, nil
}

// AppendRecords adds records below any existing rows on the records
// sheet. The header row is written only when the sheet is empty, so
// repeated exports into one file never duplicate it.
func (w *Workbook) AppendRecords(records []*invoice.Record) error {
	rows, err := w.f.GetRows(RecordsSheet)
	if err != nil {
		return fmt.Errorf("export: read sheet %s: %w", RecordsSheet, err)
	}

	next := len(rows) + 1
	if len(rows) == 0 {
		if err := w.setRow(RecordsSheet, 1, recordHeader); err != nil {
			return err
		}
		next = 2
	}

	for i, rec := range records {
		row := []any{
			rec.InvoiceDate.Format("2006-01-02"),
			rec.InvoiceNumber,
			rec.VendorName,
			rec.ProductName,
			rec.UnitPrice.InexactFloat64(),
			rec.Quantity.InexactFloat64(),
			rec.TotalPrice.InexactFloat64(),
			rec.Discount.InexactFloat64(),
			rec.TaxRatePercent.InexactFloat64(),
			rec.TaxAmount.InexactFloat64(),
			rec.PeriodBucket,
		}
		if err := w.setRow(RecordsSheet, next+i, row); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary replaces the summary sheet with the given roll-up. The
// sheet is rewritten wholesale; summaries are derived data and stale
// rows from a previous export must not survive. A nil summary clears
// the sheet and writes nothing, not zeros.
func (w *Workbook) WriteSummary(s *pipeline.Summary) error {
	if err := w.f.DeleteSheet(SummarySheet); err != nil {
		return fmt.Errorf("export: clear sheet %s: %w", SummarySheet, err)
	}
	if _, err := w.f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("export: create sheet %s: %w", SummarySheet, err)
	}

	if s == nil || len(s.Rows) == 0 {
		return nil
	}

	if err := w.setRow(SummarySheet, 1, summaryHeader); err != nil {
		return err
	}
	for i, row := range s.Rows {
		cells := []any{
			row.PeriodBucket,
			row.GroupKey,
			row.Quantity.InexactFloat64(),
			row.TotalPrice.InexactFloat64(),
			row.Discount.InexactFloat64(),
			row.TaxAmount.InexactFloat64(),
		}
		if err := w.setRow(SummarySheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

// SaveAs writes the workbook to disk.
func (w *Workbook) SaveAs(path string) error {
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save workbook: %w", err)
	}
	return nil
}

// Bytes serializes the workbook, for HTTP download responses.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the underlying file resources.
func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) setRow(sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("export: cell name for row %d: %w", rowNum, err)
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export: write row %d on %s: %w", rowNum, sheet, err)
	}
	return nil
}
