// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/internal/workerconn"
	"github.com/jontk/loadgen/pkg/errors"
)

var (
	jobsBucket           = []byte("jobs")
	optimizingJobsBucket = []byte("optimizing_jobs")
)

// BoltStore is the default Store implementation: one bucket per record
// kind, JSON-encoded values, keyed by the record's jobid.ID.
//
// Grounded on the bravo1goingdark-mailgrid example repo's
// database/boltdb.go: bbolt.Open plus CreateBucketIfNotExists on
// startup, db.Update/db.View per operation, JSON marshal/unmarshal of
// the record, and a cursor walk for LoadAll.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a BoltStore at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed,
			"failed to open bbolt database at "+path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(jobsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(optimizingJobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed,
			"failed to initialize bbolt buckets", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) SaveJob(rec JobRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not marshal job record", err)
		}
		return tx.Bucket(jobsBucket).Put([]byte(rec.ID), encoded)
	})
}

func (s *BoltStore) LoadJob(id jobid.ID) (JobRecord, error) {
	var rec JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(jobsBucket).Get([]byte(id))
		if v == nil {
			return errors.NewLoadgenError(errors.ErrorCodeNoSuchJob, "no job record for id "+string(id))
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

func (s *BoltStore) LoadAllJobs() ([]JobRecord, error) {
	var recs []JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not unmarshal job record", err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func (s *BoltStore) DeleteJob(id jobid.ID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Delete([]byte(id))
	})
}

// SaveJobState satisfies internal/scheduler.Persister: it updates only
// the state (and, on a terminal transition, the actual-stop/duration
// fields) of an existing record, creating a minimal one if none yet
// exists — the Scheduler may reach a terminal state before any fuller
// record has been saved by the admin API.
func (s *BoltStore) SaveJobState(id jobid.ID, state job.State) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		key := []byte(id)

		var rec JobRecord
		if v := b.Get(key); v != nil {
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not unmarshal job record", err)
			}
		} else {
			rec = JobRecord{ID: id}
		}

		rec.State = state
		if state.IsTerminal() {
			rec.ActualStop = time.Now()
			if !rec.ActualStart.IsZero() {
				rec.ActualDuration = rec.ActualStop.Sub(rec.ActualStart)
			}
		}

		encoded, err := json.Marshal(rec)
		if err != nil {
			return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not marshal job record", err)
		}
		return b.Put(key, encoded)
	})
}

func (s *BoltStore) SaveOptimizingJob(rec OptimizingJobRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not marshal optimizing job record", err)
		}
		return tx.Bucket(optimizingJobsBucket).Put([]byte(rec.ID), encoded)
	})
}

func (s *BoltStore) LoadOptimizingJob(id jobid.ID) (OptimizingJobRecord, error) {
	var rec OptimizingJobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(optimizingJobsBucket).Get([]byte(id))
		if v == nil {
			return errors.NewLoadgenError(errors.ErrorCodeNoSuchJob, "no optimizing job record for id "+string(id))
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

func (s *BoltStore) LoadAllOptimizingJobs() ([]OptimizingJobRecord, error) {
	var recs []OptimizingJobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(optimizingJobsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec OptimizingJobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.NewLoadgenErrorWithCause(errors.ErrorCodePersistenceFailed, "could not unmarshal optimizing job record", err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func (s *BoltStore) DeleteOptimizingJob(id jobid.ID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(optimizingJobsBucket).Delete([]byte(id))
	})
}

// EncodeTrackers converts a Job's aggregated tracker map (keyed by
// DisplayName+CollectionInterval, per internal/job.Job.Trackers) into
// its persisted wire form, reusing internal/workerconn's TrackerDTO
// rather than inventing a second encoding.
func EncodeTrackers(trackers map[string]stats.Tracker) ([]workerconn.TrackerDTO, error) {
	out := make([]workerconn.TrackerDTO, 0, len(trackers))
	for _, tr := range trackers {
		dto, err := workerconn.EncodeTracker(tr)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// DecodeTrackers reconstructs a display-name-keyed tracker map (the
// keying internal/algorithm.Iteration.Trackers expects) from its
// persisted wire form.
func DecodeTrackers(dtos []workerconn.TrackerDTO) (map[string]stats.Tracker, error) {
	out := make(map[string]stats.Tracker, len(dtos))
	for _, dto := range dtos {
		tr, err := workerconn.DecodeTracker(dto, "", "")
		if err != nil {
			return nil, err
		}
		out[tr.DisplayName()] = tr
	}
	return out, nil
}
