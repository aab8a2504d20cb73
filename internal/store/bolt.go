package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/deveshk/invoicescan/internal/invoice"
)

const rootBucket = "records"

// Bolt is the durable Store backed by a single bbolt file. Records are
// kept in one nested bucket per owner, JSON-encoded, keyed by their
// identity key.
type Bolt struct {
	db          *bbolt.DB
	granularity invoice.Granularity
}

// NewBolt opens (or creates) the database file at path.
func NewBolt(path string, g invoice.Granularity) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, &Error{Op: "create bucket", Err: err}
	}

	return &Bolt{db: db, granularity: g}, nil
}

// Upsert implements Store. The whole create-or-replace decision runs in
// one write transaction, so it is atomic at key granularity.
func (b *Bolt) Upsert(ctx context.Context, rec *invoice.Record) (bool, error) {
	key := rec.Key(b.granularity).Encode()

	var created bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(rootBucket)).CreateBucketIfNotExists([]byte(rec.OwnerID))
		if err != nil {
			return fmt.Errorf("owner bucket %q: %w", rec.OwnerID, err)
		}

		created = bucket.Get(key) == nil

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return false, &Error{Op: "upsert", Err: err}
	}
	return created, nil
}

// List implements Store.
func (b *Bolt) List(ctx context.Context, ownerID string) ([]*invoice.Record, error) {
	records := make([]*invoice.Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rootBucket)).Bucket([]byte(ownerID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec invoice.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling record %q: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return records, nil
}

// Delete implements Store.
func (b *Bolt) Delete(ctx context.Context, key invoice.Key) (bool, error) {
	encoded := key.Encode()

	var existed bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rootBucket)).Bucket([]byte(key.OwnerID))
		if bucket == nil {
			return nil
		}
		existed = bucket.Get(encoded) != nil
		if !existed {
			return nil
		}
		return bucket.Delete(encoded)
	})
	if err != nil {
		return false, &Error{Op: "delete", Err: err}
	}
	return existed, nil
}

// Close implements Store.
func (b *Bolt) Close() error {
	return b.db.Close()
}

var _ Store = (*Bolt)(nil)
