// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workerconn

import (
	"time"

	"github.com/jontk/loadgen/internal/stats"
	"github.com/jontk/loadgen/pkg/errors"
)

// EncodeTracker converts a stats.Tracker into its wire form.
func EncodeTracker(tr stats.Tracker) (TrackerDTO, error) {
	dto := TrackerDTO{
		DisplayName:          tr.DisplayName(),
		CollectionIntervalMs: tr.CollectionInterval().Milliseconds(),
		Searchable:           tr.IsSearchable(),
	}

	switch v := tr.(type) {
	case *stats.Incremental:
		dto.Variant = "incremental"
		dto.Counts = v.Counts()
	case *stats.Duration:
		dto.Variant = "duration"
		durations, counts := v.Intervals()
		dto.DurationsMs = make([]int64, len(durations))
		for i, d := range durations {
			dto.DurationsMs[i] = msFromDuration(d)
		}
		dto.SampleCounts = counts
	case *stats.Categorical:
		dto.Variant = "categorical"
		dto.Categories = v.Intervals()
	case *stats.IntegerValued:
		dto.Variant = "integer-valued"
		dto.Samples = v.Intervals()
	case *stats.Stacked:
		dto.Variant = "stacked"
		order, values, counts := v.Components()
		dto.ComponentOrder = order
		dto.Components = values
		dto.ComponentCounts = counts
	default:
		return TrackerDTO{}, errors.NewLoadgenError(errors.ErrorCodeUnknown, "unrecognized tracker variant for wire encoding")
	}
	return dto, nil
}

// DecodeTracker reconstructs a stats.Tracker from its wire form,
// scoped to the given client/thread IDs.
func DecodeTracker(dto TrackerDTO, clientID, threadID string) (stats.Tracker, error) {
	interval := durationFromMs(dto.CollectionIntervalMs)

	switch dto.Variant {
	case "incremental":
		return stats.NewIncrementalFromCounts(clientID, threadID, dto.DisplayName, interval, dto.Searchable, dto.Counts), nil
	case "duration":
		durations := make([]time.Duration, len(dto.DurationsMs))
		for i, ms := range dto.DurationsMs {
			durations[i] = durationFromMs(ms)
		}
		return stats.NewDurationFromIntervals(clientID, threadID, dto.DisplayName, interval, dto.Searchable, durations, dto.SampleCounts), nil
	case "categorical":
		return stats.NewCategoricalFromIntervals(clientID, threadID, dto.DisplayName, interval, dto.Searchable, dto.Categories), nil
	case "integer-valued":
		return stats.NewIntegerValuedFromIntervals(clientID, threadID, dto.DisplayName, interval, dto.Searchable, dto.Samples), nil
	case "stacked":
		return stats.NewStackedFromComponents(clientID, threadID, dto.DisplayName, interval, dto.Searchable, dto.ComponentOrder, dto.Components, dto.ComponentCounts), nil
	default:
		return nil, errors.NewLoadgenError(errors.ErrorCodeUnknown, "unrecognized tracker variant \""+dto.Variant+"\" on the wire")
	}
}
