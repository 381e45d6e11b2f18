package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Ping verifies the store is still readable
func (db *Database) Ping() error {
	return db.store.Bolt().View(func(tx *bbolt.Tx) error {
		return nil
	})
}

// Progress operations

// UpsertProgress creates or replaces the progress record for a content unit
func (db *Database) UpsertProgress(record *ProgressRecord) error {
	record.UpdatedAt = time.Now()
	return db.store.Upsert(record.ContentID, record)
}

// GetProgress retrieves the progress record for a content unit
func (db *Database) GetProgress(contentID string) (*ProgressRecord, error) {
	var record ProgressRecord
	err := db.store.Get(contentID, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteProgress deletes the progress record for a content unit
func (db *Database) DeleteProgress(contentID string) error {
	return db.store.Delete(contentID, &ProgressRecord{})
}

// GetAllProgress retrieves all progress records
func (db *Database) GetAllProgress() ([]*ProgressRecord, error) {
	var records []*ProgressRecord
	err := db.store.Find(&records, nil)
	return records, err
}

// PruneCompletedBefore deletes completed records last updated before the cutoff
func (db *Database) PruneCompletedBefore(cutoff time.Time) (int, error) {
	var records []*ProgressRecord
	err := db.store.Find(&records, bolthold.Where("Completed").Eq(true))
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, record := range records {
		if record.UpdatedAt.Before(cutoff) {
			if err := db.store.Delete(record.ContentID, &ProgressRecord{}); err != nil {
				return pruned, err
			}
			pruned++
		}
	}

	return pruned, nil
}

// Preference operations

// GetSubtitlePreference retrieves the sticky subtitle preference.
// Returns bolthold.ErrNotFound when no choice was ever made.
func (db *Database) GetSubtitlePreference() (*SubtitlePreference, error) {
	var pref SubtitlePreference
	err := db.store.Get(SubtitlePreferenceID, &pref)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// SaveSubtitlePreference creates or replaces the sticky subtitle preference
func (db *Database) SaveSubtitlePreference(pref *SubtitlePreference) error {
	pref.ID = SubtitlePreferenceID
	pref.UpdatedAt = time.Now()
	return db.store.Upsert(pref.ID, pref)
}
