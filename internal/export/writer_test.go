package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/pipeline"
)

func exportRecord(product string, total float64) *invoice.Record {
	date, _ := time.Parse("2006-01-02", "2025-03-15")
	return &invoice.Record{
		OwnerID:       "alice",
		VendorName:    "Acme Stores",
		InvoiceNumber: "INV-100",
		InvoiceDate:   date,
		ProductName:   product,
		UnitPrice:     decimal.NewFromFloat(total),
		Quantity:      decimal.NewFromInt(1),
		TotalPrice:    decimal.NewFromFloat(total),
		PeriodBucket:  "2025-03",
	}
}

func sheetRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("Open written workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s): %v", sheet, err)
	}
	return rows
}

func TestWorkbook_WriteAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	wb, err := NewWorkbook()
	if err != nil {
		t.Fatalf("NewWorkbook failed: %v", err)
	}
	defer wb.Close()

	records := []*invoice.Record{
		exportRecord("Widget", 20),
		exportRecord("Gadget", 7),
	}
	if err := wb.AppendRecords(records); err != nil {
		t.Fatalf("AppendRecords failed: %v", err)
	}

	summary := pipeline.Aggregate(records, true)
	if err := wb.WriteSummary(summary); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}

	rows := sheetRows(t, path, RecordsSheet)
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 record rows, got %d", len(rows))
	}
	if rows[0][0] != "Invoice Date" {
		t.Errorf("Expected header row first, got %v", rows[0])
	}
	if rows[1][3] != "Widget" || rows[2][3] != "Gadget" {
		t.Errorf("Expected product names in order, got %v / %v", rows[1], rows[2])
	}

	// Group row, month total, grand total.
	summaryRows := sheetRows(t, path, SummarySheet)
	if len(summaryRows) != 4 {
		t.Fatalf("Expected header + 3 summary rows, got %d", len(summaryRows))
	}
	last := summaryRows[len(summaryRows)-1]
	if last[1] != pipeline.GroupKeyGrandTotal {
		t.Errorf("Expected grand total as last summary row, got %v", last)
	}
}

func TestWorkbook_AppendWithoutDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook on missing file failed: %v", err)
	}
	if err := wb.AppendRecords([]*invoice.Record{exportRecord("Widget", 20)}); err != nil {
		t.Fatalf("AppendRecords failed: %v", err)
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	wb.Close()

	// Second export into the same file appends below the existing rows.
	wb, err = OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook on existing file failed: %v", err)
	}
	defer wb.Close()
	if err := wb.AppendRecords([]*invoice.Record{exportRecord("Gadget", 7)}); err != nil {
		t.Fatalf("Second AppendRecords failed: %v", err)
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}

	rows := sheetRows(t, path, RecordsSheet)
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows after append, got %d", len(rows))
	}
	headers := 0
	for _, row := range rows {
		if len(row) > 0 && row[0] == "Invoice Date" {
			headers++
		}
	}
	if headers != 1 {
		t.Errorf("Expected exactly one header row, got %d", headers)
	}
}

func TestWorkbook_EmptySummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	wb, err := NewWorkbook()
	if err != nil {
		t.Fatalf("NewWorkbook failed: %v", err)
	}
	defer wb.Close()

	// A nil summary leaves the sheet blank - no zero-filled rows.
	if err := wb.WriteSummary(nil); err != nil {
		t.Fatalf("WriteSummary(nil) failed: %v", err)
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}

	rows := sheetRows(t, path, SummarySheet)
	if len(rows) != 0 {
		t.Errorf("Expected empty summary sheet, got %d rows", len(rows))
	}
}

func TestWorkbook_SummaryReplaced(t *testing.T) {
	wb, err := NewWorkbook()
	if err != nil {
		t.Fatalf("NewWorkbook failed: %v", err)
	}
	defer wb.Close()

	records := []*invoice.Record{exportRecord("Widget", 20)}
	if err := wb.WriteSummary(pipeline.Aggregate(records, true)); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	// Rewriting replaces the previous contents instead of appending.
	if err := wb.WriteSummary(pipeline.Aggregate(records, true)); err != nil {
		t.Fatalf("Second WriteSummary failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}

	rows := sheetRows(t, path, SummarySheet)
	if len(rows) != 4 {
		t.Errorf("Expected header + 3 rows after rewrite, got %d", len(rows))
	}
}
