// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobid implements the Job ID grammar and total-ordering comparison.
//
// A Job ID has the form:
//
//	<date14>-<rand6><counter>[-<iterThreads>[-rerun]]
//
// where date14 is yyyyMMddHHmmss, rand6 is six alphanumeric characters
// (collision-avoidance only, never compared), and counter is a decimal
// integer. Optimizing-job iteration children extend their parent's ID with
// a thread-count segment, and the rerun-of-best child appends "-rerun".
package jobid

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "20060102150405"

// ID is a Job or Optimizing Job identifier in its canonical string form.
type ID string

// String returns the canonical textual form.
func (id ID) String() string { return string(id) }

// Parsed holds the decomposed tokens of a Job ID, as used by Compare.
type Parsed struct {
	Date14       string
	Rand6        string
	Counter      int
	HasIteration bool
	Iteration    int
	IsRerun      bool
}

// New mints a fresh root Job ID at the given time with the given
// collision-avoidance counter. The random component is sourced from a
// UUID rather than a bare PRNG so the coordinator never has to seed or
// guard a shared random source across concurrent admissions.
func New(now time.Time, counter int) ID {
	rand6 := strings.ToLower(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return ID(fmt.Sprintf("%s-%s%d", now.Format(dateLayout), rand6, counter))
}

// NewChild builds an optimizing job's Nth iteration child ID, e.g.
// "<optimizingJobID>-<threads>".
func NewChild(parent ID, threads int) ID {
	return ID(fmt.Sprintf("%s-%d", parent, threads))
}

// NewRerunChild builds the rerun-of-best child ID, e.g.
// "<optimizingJobID>-<threads>-rerun".
func NewRerunChild(parent ID, threads int) ID {
	return ID(fmt.Sprintf("%s-%d-rerun", parent, threads))
}

// Parse decomposes a Job ID into its grammar tokens.
func Parse(id ID) (*Parsed, error) {
	parts := strings.Split(string(id), "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("jobid: malformed id %q: expected at least date and counter segments", id)
	}

	date14 := parts[0]
	if len(date14) != 14 {
		return nil, fmt.Errorf("jobid: malformed id %q: date segment %q is not 14 digits", id, date14)
	}
	if _, err := time.Parse(dateLayout, date14); err != nil {
		return nil, fmt.Errorf("jobid: malformed id %q: %w", id, err)
	}

	second := parts[1]
	if len(second) < 7 {
		return nil, fmt.Errorf("jobid: malformed id %q: rand+counter segment %q too short", id, second)
	}
	rand6, counterStr := second[:6], second[6:]
	counter, err := strconv.Atoi(counterStr)
	if err != nil {
		return nil, fmt.Errorf("jobid: malformed id %q: counter %q not numeric: %w", id, counterStr, err)
	}

	p := &Parsed{Date14: date14, Rand6: rand6, Counter: counter}

	rest := parts[2:]
	switch len(rest) {
	case 0:
	case 1:
		threads, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("jobid: malformed id %q: iteration segment %q not numeric", id, rest[0])
		}
		p.HasIteration = true
		p.Iteration = threads
	case 2:
		threads, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("jobid: malformed id %q: iteration segment %q not numeric", id, rest[0])
		}
		if rest[1] != "rerun" {
			return nil, fmt.Errorf("jobid: malformed id %q: expected trailing \"rerun\", got %q", id, rest[1])
		}
		p.HasIteration = true
		p.Iteration = threads
		p.IsRerun = true
	default:
		return nil, fmt.Errorf("jobid: malformed id %q: unexpected trailing segments %v", id, rest)
	}

	return p, nil
}

// Compare implements the total ordering: dates compare lexicographically,
// counters compare numerically (the random prefix is never compared),
// iteration-less jobs order before jobs with iterations, and a
// rerun-tagged iteration orders after all numeric iterations of the same
// optimizing job. Returns -1, 0, or 1. Malformed IDs compare equal to
// nothing but themselves and sort after well-formed ones.
func Compare(a, b ID) int {
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	if errA != nil || errB != nil {
		switch {
		case errA != nil && errB != nil:
			return strings.Compare(string(a), string(b))
		case errA != nil:
			return 1
		default:
			return -1
		}
	}

	if pa.Date14 != pb.Date14 {
		return strings.Compare(pa.Date14, pb.Date14)
	}
	if pa.Counter != pb.Counter {
		if pa.Counter < pb.Counter {
			return -1
		}
		return 1
	}

	switch {
	case !pa.HasIteration && !pb.HasIteration:
		return 0
	case !pa.HasIteration && pb.HasIteration:
		return -1
	case pa.HasIteration && !pb.HasIteration:
		return 1
	case pa.IsRerun && !pb.IsRerun:
		return 1
	case !pa.IsRerun && pb.IsRerun:
		return -1
	case pa.Iteration != pb.Iteration:
		if pa.Iteration < pb.Iteration {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b, for use with sort.Slice.
func Less(a, b ID) bool { return Compare(a, b) < 0 }

// RootOf returns the root Job ID (date+rand+counter only, stripping any
// iteration/rerun suffix) that an iteration child or rerun child belongs to.
func RootOf(id ID) (ID, error) {
	p, err := Parse(id)
	if err != nil {
		return "", err
	}
	return ID(fmt.Sprintf("%s-%s%d", p.Date14, p.Rand6, p.Counter)), nil
}
