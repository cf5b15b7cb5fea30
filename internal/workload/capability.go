// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package workload implements the Workload Capability contract from
// SPEC_FULL.md §4.1 — the polymorphic surface every load-generating
// job class implements — plus a registry workers and the admin API use
// to discover workload classes by name.
package workload

import (
	"context"

	"github.com/jontk/loadgen/internal/stats"
)

// JobInfo is the validated, resolved parameter set a Capability is
// handed once a job is admitted.
type JobInfo struct {
	JobID      string
	Parameters map[string]any
	NumClients int
	Threads    int
}

// TestResult reports the outcome of a provider-supplied parameter test
// (e.g. a connectivity check) run before a job is scheduled.
type TestResult struct {
	Passed  bool
	Message string
}

// Capability is the contract every workload class implements. A
// worker obtains one Capability instance per thread from the Registry,
// prepares it with InitializeThread, and drives it through RunJob until
// ShouldStop reports true or the workload's own loop condition ends.
type Capability interface {
	// Descriptive metadata, used by the registry and the admin API.
	JobName() string
	ShortDescription() string
	LongDescription() string
	CategoryName() string

	// ParameterStubs describes the parameters runJob accepts.
	// ClientSideParameterStubs describes the subset resolved on the
	// worker rather than the coordinator (e.g. a per-client seed).
	ParameterStubs() ParameterList
	ClientSideParameterStubs() ParameterList

	// StatTrackerStubs declares, ahead of any run, the trackers this
	// workload will report — the Optimization Algorithm capability
	// consults this to decide availability without running a job.
	StatTrackerStubs() []TrackerStub

	// Overrides let a workload class narrow the values a Job may
	// request; zero means "use whatever the Job requested".
	OverrideNumClients() int
	OverrideThreadsPerClient() int
	OverrideCollectionInterval() int

	// ValidateJobInfo rejects invalid parameter combinations before
	// a job is ever scheduled.
	ValidateJobInfo(info JobInfo) error

	// ProvidesParameterTest reports whether TestJobParameters is
	// meaningful for this workload (e.g. "can we reach the target").
	ProvidesParameterTest() bool
	TestJobParameters(ctx context.Context, info JobInfo) (TestResult, error)

	// InitializeJob runs once, before any client or thread starts,
	// with the coordinator-resolved JobInfo.
	InitializeJob(ctx context.Context, info JobInfo) error

	// InitializeClient runs once per worker process taking part in
	// the job; InitializeThread runs once per thread on that worker,
	// on the per-thread Capability instance RunJob is then called on
	// (each thread's instance is a separate Registry.Get result).
	InitializeClient(ctx context.Context, clientID string) error
	InitializeThread(ctx context.Context, clientID, threadID string) error

	// RunJob executes the workload body for one thread until
	// ShouldStop reports true. Trackers recorded during the run are
	// retrievable via StatTrackers after RunJob returns.
	RunJob(ctx context.Context) error
	StatTrackers() []stats.Tracker

	FinalizeThread(ctx context.Context) error
	FinalizeClient(ctx context.Context) error
	FinalizeJob(ctx context.Context) error

	// Stop contract: ShouldStop is polled by the workload's own run
	// loop; StopJob requests a stop; StopAndWait blocks until the
	// workload acknowledges.
	ShouldStop() bool
	StopJob()
	StopAndWait(ctx context.Context) error

	// DestroyThread is the fallback used when a thread does not honor
	// StopJob within a bounded delay.
	DestroyThread() error
}

// Factory returns a fresh, unconfigured Capability instance. Registered
// per workload class name in a Registry.
type Factory func() Capability

// ParameterStub describes one parameter a workload accepts.
type ParameterStub struct {
	Name         string
	DisplayName  string
	Description  string
	Required     bool
	DefaultValue any
	// Schema is an OpenAPI 3 schema (type, enum, min/max, pattern)
	// used to validate a supplied value; nil means no structural
	// validation beyond Required.
	Schema *ParameterSchema
}

// ParameterList is an ordered set of parameter stubs.
type ParameterList []ParameterStub

// TrackerStub declares one stat tracker a workload will report,
// without yet holding any data.
type TrackerStub struct {
	DisplayName string
	Variant     TrackerVariant
	Searchable  bool
}

// TrackerVariant names which of the five stats.Tracker shapes a stub
// describes.
type TrackerVariant string

const (
	VariantIncremental   TrackerVariant = "incremental"
	VariantDuration      TrackerVariant = "duration"
	VariantCategorical   TrackerVariant = "categorical"
	VariantIntegerValued TrackerVariant = "integer-valued"
	VariantStacked       TrackerVariant = "stacked"
)
