// Package storage persists simulation run history in a BoltDB file
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const runBucket = "runs"

// Storage wraps a BoltDB instance holding run records
type Storage struct {
	db *bbolt.DB
}

// RunRecord captures a single simulation run summary
type RunRecord struct {
	ID              uint64    `json:"id" yaml:"id"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	Topology        string    `json:"topology" yaml:"topology"`
	Ticks           uint64    `json:"ticks" yaml:"ticks"`
	DeviceCount     int       `json:"device_count" yaml:"device_count"`
	FramesDelivered uint64    `json:"frames_delivered" yaml:"frames_delivered"`
	Drops           uint64    `json:"drops" yaml:"drops"`
	Faults          int       `json:"faults" yaml:"faults"`
}

// Open opens (or creates) the storage database at the requested path
func Open(path string) (*Storage, error) {
	if strings.EqualFold(path, "disabled") || path == "" {
		return nil, errors.New("storage disabled")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddRun stores a run record
func (s *Storage) AddRun(record RunRecord) error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		id, _ := b.NextSequence()
		record.ID = id

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// ListRuns returns the most recent run records up to the requested limit
func (s *Storage) ListRuns(limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialised")
	}
	if limit <= 0 {
		limit = 10
	}

	var records []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
