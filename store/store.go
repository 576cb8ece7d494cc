// Package store persists deployment run reports in a local bbolt file so
// operators can inspect the history of a host.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stackpilot/stackpilot/stage"
)

const runsBucket = "runs"

// DB wraps the bbolt database with report helpers.
type DB struct {
	*bolt.DB
}

// Open opens or creates the run history database.
func Open(path string) (*DB, error) {
	boltDB, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	db := &DB{boltDB}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	}); err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}
	return db, nil
}

// SaveReport stores a run report keyed by its run ID.
func (db *DB) SaveReport(report *stage.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", runsBucket)
		}
		return b.Put([]byte(report.RunID), data)
	})
}

// GetReport retrieves one run report by ID.
func (db *DB) GetReport(runID string) (*stage.Report, error) {
	var report stage.Report
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", runsBucket)
		}
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListReports returns all stored reports, most recent first.
func (db *DB) ListReports() ([]*stage.Report, error) {
	var reports []*stage.Report
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", runsBucket)
		}
		return b.ForEach(func(k, v []byte) error {
			var report stage.Report
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("corrupt report %s: %w", string(k), err)
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Started.After(reports[j].Started)
	})
	return reports, nil
}

// LatestReport returns the most recent run, or nil when none exist.
func (db *DB) LatestReport() (*stage.Report, error) {
	reports, err := db.ListReports()
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return reports[0], nil
}
