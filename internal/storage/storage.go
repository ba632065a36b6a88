// Package storage provides the optional prediction journal for the credit risk form.
// It uses BoltDB as the underlying storage engine to keep every accepted submission
// together with the profile that produced it and the model's answer.
//
// Records are keyed by zero-padded timestamp plus submission ID, so a cursor walk
// returns them in chronological order and range queries are plain seeks.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"credit-risk/internal/features"
	"credit-risk/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	predictionsBucket = "predictions"
	dbFile            = "credit-risk.db"
)

// Keys hold non-negative Unix nanoseconds, so only timestamps in
// [MinKeyTime, MaxKeyTime] can be stored or used as range bounds.
var (
	MinKeyTime = time.Unix(0, 0).UTC()
	MaxKeyTime = time.Unix(0, math.MaxInt64).UTC()
)

// Record is one journaled submission.
type Record struct {
	ID        string                    `json:"id"`
	Timestamp time.Time                 `json:"timestamp"`
	Channel   string                    `json:"channel"`
	Profile   features.ApplicantProfile `json:"profile"`
	Result    ml.Result                 `json:"result"`
}

// Store persists prediction records in BoltDB.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// New opens (or creates) the journal database inside dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append journals a scored profile under a fresh submission ID.
func (s *Store) Append(channel string, p features.ApplicantProfile, r ml.Result) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Channel:   channel,
		Profile:   p,
		Result:    r,
	}
	if err := s.StorePrediction(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// StorePrediction writes rec as-is; ID and Timestamp must be set.
func (s *Store) StorePrediction(rec Record) error {
	if rec.ID == "" || rec.Timestamp.IsZero() {
		return fmt.Errorf("record needs an id and a timestamp")
	}
	if rec.Timestamp.Before(MinKeyTime) || rec.Timestamp.After(MaxKeyTime) {
		return fmt.Errorf("timestamp %s outside the journal key range", rec.Timestamp.Format(time.RFC3339))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		return b.Put(recordKey(rec.Timestamp, rec.ID), data)
	})
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	records := make([]Record, 0, limit)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// InRange returns the records with start <= timestamp <= end in chronological order.
// Bounds outside the key range are clamped to it.
func (s *Store) InRange(start, end time.Time) ([]Record, error) {
	var records []Record
	if end.Before(MinKeyTime) || start.After(MaxKeyTime) || end.Before(start) {
		return records, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		startKey := timePrefix(clampKeyTime(start))
		var endKey []byte // nil runs to the last key
		if end.Before(MaxKeyTime) {
			endKey = timePrefix(end.Add(time.Nanosecond))
		}

		for k, v := c.Seek(startKey); k != nil && (endKey == nil || bytes.Compare(k, endKey) < 0); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Count returns the number of journaled records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func clampKeyTime(t time.Time) time.Time {
	switch {
	case t.Before(MinKeyTime):
		return MinKeyTime
	case t.After(MaxKeyTime):
		return MaxKeyTime
	}
	return t
}

func timePrefix(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}

func recordKey(t time.Time, id string) []byte {
	return append(timePrefix(t), []byte("_"+id)...)
}
