package receipt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	historyBucketName     = "processed_receipts"
	fingerprintBucketName = "fingerprints"
)

// DB is the local processing history: an audit row per published
// receipt plus a fingerprint index for the opt-in duplicate check.
type DB interface {
	// SaveProcessed records a published receipt and its fingerprint.
	SaveProcessed(p *ProcessedReceipt) error

	// SeenFingerprint reports whether a receipt with this fingerprint
	// was already published.
	SeenFingerprint(fingerprint string) (bool, error)

	// ListRecent returns up to limit processed receipts, newest first.
	ListRecent(limit int) ([]*ProcessedReceipt, error)

	// Close closes the database.
	Close() error
}

// BoltDB implements DB on a local bbolt file.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the history database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(historyBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(fingerprintBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveProcessed stores the audit row keyed by ID and indexes its
// fingerprint in the same transaction.
func (b *BoltDB) SaveProcessed(p *ProcessedReceipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling processed receipt: %w", err)
		}
		if err := tx.Bucket([]byte(historyBucketName)).Put([]byte(p.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(fingerprintBucketName)).Put([]byte(p.Fingerprint), []byte(p.ID))
	})
}

// SeenFingerprint checks the fingerprint index.
func (b *BoltDB) SeenFingerprint(fingerprint string) (bool, error) {
	var seen bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		seen = tx.Bucket([]byte(fingerprintBucketName)).Get([]byte(fingerprint)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return seen, nil
}

// ListRecent returns up to limit processed receipts, newest first.
func (b *BoltDB) ListRecent(limit int) ([]*ProcessedReceipt, error) {
	processed := make([]*ProcessedReceipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(historyBucketName)).ForEach(func(k, v []byte) error {
			var p ProcessedReceipt
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling processed receipt: %w", err)
			}
			processed = append(processed, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(processed, func(i, j int) bool {
		return processed[i].CreatedAt.After(processed[j].CreatedAt)
	})
	if limit > 0 && len(processed) > limit {
		processed = processed[:limit]
	}
	return processed, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
