// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package store implements the persistence adapter from SPEC_FULL.md
// §4.10: a Store contract for Job and Optimizing Job records (the
// field list of spec.md §6's "persisted job record"), plus a default
// go.etcd.io/bbolt-backed implementation. The on-disk schema itself is
// unspecified per §1 — any round-trippable encoding is admissible, so
// this package is free to choose JSON over gob.
package store

import (
	"time"

	"github.com/jontk/loadgen/internal/algorithm"
	"github.com/jontk/loadgen/internal/job"
	"github.com/jontk/loadgen/internal/jobid"
	"github.com/jontk/loadgen/internal/optimizing"
	"github.com/jontk/loadgen/internal/workerconn"
)

// JobRecord is the self-describing persisted record for one Job,
// covering every field spec.md §6 names.
type JobRecord struct {
	ID                      jobid.ID
	WorkloadName            string
	OptimizingJobID         jobid.ID
	Group                   string
	Folder                  string
	State                   job.State
	DisplayReadOnly         bool
	Description             string
	ScheduledStart          time.Time
	ScheduledStop           *time.Time
	ScheduledDuration       time.Duration
	NumClients              int
	RequestedMonitorClients int
	MonitorIfAvailable      bool
	WaitForClients          bool
	ThreadsPerClient        int
	ThreadStartupDelay      time.Duration
	Dependencies            []jobid.ID
	NotifyAddresses         []string
	CollectionInterval      time.Duration
	Comments                string
	Parameters              map[string]string
	ActualStart             time.Time
	ActualStop              time.Time
	ActualDuration          time.Duration
	Trackers                []workerconn.TrackerDTO
	MonitorTrackers         []workerconn.TrackerDTO
	LogMessages             []string
}

// OptimizingJobRecord is the persisted record for one Optimizing Job:
// its static configuration plus the iteration-child list needed to
// replay algorithm state on reload (internal/optimizing.ReplayLegacyState).
type OptimizingJobRecord struct {
	ID                     jobid.ID
	WorkloadName           string
	NumClients             int
	MinThreads             int
	MaxThreads             int
	ThreadIncrement        int
	ReRunBest              bool
	ReRunDuration          time.Duration
	DelayBetweenIterations time.Duration
	MaxNonImproving        int
	Description            string
	NotifyAddresses        []string
	AlgorithmName          string
	AlgorithmParams        algorithm.Params
	Children               []optimizing.ChildRecord
	ChildTrackers          map[jobid.ID][]workerconn.TrackerDTO
}

// Store is the persistence contract SPEC_FULL.md §4.10 names:
// Job and Optimizing Job CRUD, plus the narrow SaveJobState the
// Scheduler calls on every completion (internal/scheduler.Persister).
type Store interface {
	SaveJob(rec JobRecord) error
	LoadJob(id jobid.ID) (JobRecord, error)
	LoadAllJobs() ([]JobRecord, error)
	DeleteJob(id jobid.ID) error
	SaveJobState(id jobid.ID, state job.State) error

	SaveOptimizingJob(rec OptimizingJobRecord) error
	LoadOptimizingJob(id jobid.ID) (OptimizingJobRecord, error)
	LoadAllOptimizingJobs() ([]OptimizingJobRecord, error)
	DeleteOptimizingJob(id jobid.ID) error

	Close() error
}
