package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/deveshk/invoicescan/internal/invoice"
)

func sampleRecord(owner, product string, total float64) *invoice.Record {
	date, _ := time.Parse("2006-01-02", "2025-03-15")
	return &invoice.Record{
		OwnerID:       owner,
		VendorName:    "Acme Stores",
		InvoiceNumber: "INV-100",
		InvoiceDate:   date,
		ProductName:   product,
		TotalPrice:    decimal.NewFromFloat(total),
		PeriodBucket:  "2025-03",
	}
}

// runStoreTests exercises the Store contract against any implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("upsert creates then updates", func(t *testing.T) {
		st := newStore(t)
		defer st.Close()
		ctx := context.Background()

		created, err := st.Upsert(ctx, sampleRecord("alice", "Widget", 20))
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if !created {
			t.Error("Expected first upsert to create")
		}

		created, err = st.Upsert(ctx, sampleRecord("alice", "Widget", 25))
		if err != nil {
			t.Fatalf("Second upsert failed: %v", err)
		}
		if created {
			t.Error("Expected second upsert to update in place")
		}

		records, err := st.List(ctx, "alice")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected 1 record after re-upsert, got %d", len(records))
		}
		if !records[0].TotalPrice.Equal(decimal.NewFromInt(25)) {
			t.Errorf("Expected last write to win, got total %s", records[0].TotalPrice)
		}
	})

	t.Run("different products are different records", func(t *testing.T) {
		st := newStore(t)
		defer st.Close()
		ctx := context.Background()

		if _, err := st.Upsert(ctx, sampleRecord("alice", "Widget", 20)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if _, err := st.Upsert(ctx, sampleRecord("alice", "Gadget", 7)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		records, err := st.List(ctx, "alice")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records, got %d", len(records))
		}
	})

	t.Run("owners are isolated", func(t *testing.T) {
		st := newStore(t)
		defer st.Close()
		ctx := context.Background()

		if _, err := st.Upsert(ctx, sampleRecord("alice", "Widget", 20)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if _, err := st.Upsert(ctx, sampleRecord("bob", "Widget", 30)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		aliceRecords, err := st.List(ctx, "alice")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(aliceRecords) != 1 || !aliceRecords[0].TotalPrice.Equal(decimal.NewFromInt(20)) {
			t.Errorf("Expected alice to see only her record, got %+v", aliceRecords)
		}

		empty, err := st.List(ctx, "carol")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("Expected no records for unknown owner, got %d", len(empty))
		}
	})

	t.Run("delete", func(t *testing.T) {
		st := newStore(t)
		defer st.Close()
		ctx := context.Background()

		rec := sampleRecord("alice", "Widget", 20)
		if _, err := st.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		key := rec.Key(invoice.GranularityLineItem)
		deleted, err := st.Delete(ctx, key)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if !deleted {
			t.Error("Expected delete to report the record existed")
		}

		deleted, err = st.Delete(ctx, key)
		if err != nil {
			t.Fatalf("Second delete failed: %v", err)
		}
		if deleted {
			t.Error("Expected second delete to report nothing deleted")
		}

		records, _ := st.List(ctx, "alice")
		if len(records) != 0 {
			t.Errorf("Expected empty store after delete, got %d records", len(records))
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemory(invoice.GranularityLineItem)
	})
}

func TestBoltStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		st, err := NewBolt(filepath.Join(t.TempDir(), "test.db"), invoice.GranularityLineItem)
		if err != nil {
			t.Fatalf("NewBolt failed: %v", err)
		}
		return st
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := NewBolt(path, invoice.GranularityLineItem)
	if err != nil {
		t.Fatalf("NewBolt failed: %v", err)
	}
	if _, err := st.Upsert(ctx, sampleRecord("alice", "Widget", 20)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	st, err = NewBolt(path, invoice.GranularityLineItem)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer st.Close()

	records, err := st.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].ProductName != "Widget" {
		t.Errorf("Expected record to survive reopen, got %+v", records)
	}
}

func TestDocumentGranularityKey(t *testing.T) {
	st := NewMemory(invoice.GranularityDocument)
	ctx := context.Background()

	// In document granularity two records from the same receipt collide
	// even when their product names differ.
	if _, err := st.Upsert(ctx, sampleRecord("alice", "Widget", 20)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	created, err := st.Upsert(ctx, sampleRecord("alice", "Gadget", 30))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if created {
		t.Error("Expected same receipt to update regardless of product name")
	}

	records, _ := st.List(ctx, "alice")
	if len(records) != 1 {
		t.Errorf("Expected 1 record in document granularity, got %d", len(records))
	}
}
