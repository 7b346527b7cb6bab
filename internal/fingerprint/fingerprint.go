// Package fingerprint detects whether a source file changed since its last
// completed ingestion.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"mitonet/internal/blob"
	"mitonet/pkg/domain"
)

// Decision is the outcome of comparing a file with the committed record.
type Decision string

// Change detection outcomes.
const (
	Unseen     Decision = "unseen"
	Unchanged  Decision = "unchanged"
	NewVersion Decision = "new-version"
)

// Fingerprint is the (size, content hash) pair of a file.
type Fingerprint struct {
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// Equal reports whether both size and hash match.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Size == o.Size && f.Hash == o.Hash
}

// Compute streams r through SHA-256.
func Compute(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: n, Hash: hex.EncodeToString(h.Sum(nil))}, nil
}

// Of fingerprints the stored file under key.
func Of(ctx context.Context, files blob.Store, key string) (Fingerprint, blob.Info, error) {
	info, rc, err := files.Get(ctx, key)
	if err != nil {
		return Fingerprint{}, blob.Info{}, err
	}
	defer func() { _ = rc.Close() }()
	fp, err := Compute(rc)
	if err != nil {
		return Fingerprint{}, blob.Info{}, fmt.Errorf("hash %s: %w", key, err)
	}
	return fp, info, nil
}

// Check is the change-detection verdict for one source.
type Check struct {
	Decision Decision
	Current  Fingerprint
	// Previous is the latest committed record; zero when Decision is Unseen.
	Previous domain.DataSource
	Forced   bool
}

// Skip reports whether ingestion can be skipped entirely.
func (c Check) Skip() bool {
	return c.Decision == Unchanged && !c.Forced
}

// Compare classifies cur against the committed record prev.
func Compare(prev domain.DataSource, found bool, cur Fingerprint) Decision {
	if !found || !prev.Committed() {
		return Unseen
	}
	if (Fingerprint{Size: *prev.FileSize, Hash: prev.FileHash}).Equal(cur) {
		return Unchanged
	}
	return NewVersion
}

// Store reads and commits fingerprints through the relational store.
type Store struct {
	db domain.PersistentStore
}

// NewStore returns a fingerprint store over db.
func NewStore(db domain.PersistentStore) *Store {
	return &Store{db: db}
}

// Detect compares cur with the latest committed record for the source name.
func (s *Store) Detect(ctx context.Context, name string, cur Fingerprint, force bool) (Check, error) {
	check := Check{Current: cur, Forced: force}
	err := s.db.View(ctx, func(r domain.Reader) error {
		prev, ok, err := r.LatestSource(name)
		if err != nil {
			return err
		}
		check.Decision = Compare(prev, ok, cur)
		if ok {
			check.Previous = prev
		}
		return nil
	})
	if err != nil {
		return Check{}, fmt.Errorf("detect changes for %s: %w", name, err)
	}
	return check, nil
}

// Commit marks a source version as fully ingested. It runs inside the
// transaction that completes the run so a failed run never records it.
func Commit(tx domain.Transaction, sourceID int64, fp Fingerprint, at time.Time) error {
	return tx.CommitFingerprint(sourceID, fp.Size, fp.Hash, at)
}
