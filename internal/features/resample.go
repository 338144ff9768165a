package features

import (
	"fmt"
	"sort"
	"time"
)

// ResampleBin is the fixed grid width used for lag and rolling features.
const ResampleBin = 15 * time.Minute

// Bin offsets for the lag features, in grid steps.
const (
	lagSteps15m    = 1
	lagSteps1h     = 4
	rollingWindow  = 4
	minLaggedSteps = 4 // first grid row with every lag/rolling value defined
)

// Row is one training example: an ordered feature vector plus the two
// label columns.
type Row struct {
	Instant   time.Time
	Values    []float64
	Occupancy float64
	DoorOpen  bool
}

// BuildTrainingRows produces the training set for the given feature set.
// Readings may arrive in any order; output rows are strictly ascending in
// time and deterministic for identical input. An empty result is not an
// error here; the trainer decides whether to skip.
func BuildTrainingRows(set Set, readings []Reading, bucketWidth time.Duration) ([]Row, error) {
	switch set {
	case SetCalendarLag:
		return laggedRows(readings)
	case SetCyclical:
		return cyclicalRows(readings, bucketWidth)
	}
	return nil, fmt.Errorf("unknown feature set %q", set)
}

// laggedRows resamples readings onto the 15-minute grid, averaging each
// bin and forward-filling empty bins from the last observed value, then
// emits one row per grid step that has a full lag history. Steps before
// the history is deep enough are dropped, mirroring the NaN-row drop in
// the offline pipeline this replaces.
func laggedRows(readings []Reading) ([]Row, error) {
	grid := resample(readings)
	if len(grid.counts) <= minLaggedSteps {
		return nil, nil
	}

	names := SetCalendarLag.Names()
	rows := make([]Row, 0, len(grid.counts)-minLaggedSteps)

	for i := minLaggedSteps; i < len(grid.counts); i++ {
		instant := grid.start.Add(time.Duration(i) * ResampleBin)

		rolling := 0.0
		for j := i - rollingWindow + 1; j <= i; j++ {
			rolling += grid.counts[j]
		}
		rolling /= rollingWindow

		values := timeValues(instant)
		values[NameLag15m] = grid.counts[i-lagSteps15m]
		values[NameLag1h] = grid.counts[i-lagSteps1h]
		values[NameRollingMean1h] = rolling

		vector, err := assemble(names, values)
		if err != nil {
			return nil, err
		}

		rows = append(rows, Row{
			Instant:   instant,
			Values:    vector,
			Occupancy: grid.counts[i],
			DoorOpen:  grid.doorOpen[i],
		})
	}

	return rows, nil
}

// cyclicalRows emits one row per snapshot when a bucket width is set, or
// one row per raw reading otherwise. No lag history is required, so no
// rows are dropped.
func cyclicalRows(readings []Reading, bucketWidth time.Duration) ([]Row, error) {
	names := SetCyclical.Names()

	if bucketWidth > 0 {
		snapshots := Aggregate(readings, bucketWidth)
		rows := make([]Row, 0, len(snapshots))
		for _, snap := range snapshots {
			vector, err := assemble(names, timeValues(snap.BucketStart))
			if err != nil {
				return nil, err
			}
			rows = append(rows, Row{
				Instant:   snap.BucketStart,
				Values:    vector,
				Occupancy: snap.MeanCount,
				DoorOpen:  snap.DoorOpen,
			})
		}
		return rows, nil
	}

	sorted := sortedByTime(readings)
	rows := make([]Row, 0, len(sorted))
	for _, r := range sorted {
		vector, err := assemble(names, timeValues(r.Timestamp))
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Instant:   r.Timestamp,
			Values:    vector,
			Occupancy: r.PersonCount,
			DoorOpen:  r.DoorOpen,
		})
	}
	return rows, nil
}

// gridSeries is the resampled occupancy series: one mean count and one
// majority door state per 15-minute step, gap-free between the first and
// last reading.
type gridSeries struct {
	start    time.Time
	counts   []float64
	doorOpen []bool
}

// resample averages readings per grid bin and forward-fills empty bins
// from the last observed bin.
func resample(readings []Reading) gridSeries {
	if len(readings) == 0 {
		return gridSeries{}
	}

	sorted := sortedByTime(readings)
	start := BucketStart(sorted[0].Timestamp, ResampleBin)
	end := BucketStart(sorted[len(sorted)-1].Timestamp, ResampleBin)
	steps := int(end.Sub(start)/ResampleBin) + 1

	sums := make([]float64, steps)
	counts := make([]int, steps)
	openCounts := make([]int, steps)

	for _, r := range sorted {
		i := int(BucketStart(r.Timestamp, ResampleBin).Sub(start) / ResampleBin)
		sums[i] += r.PersonCount
		counts[i]++
		if r.DoorOpen {
			openCounts[i]++
		}
	}

	grid := gridSeries{
		start:    start,
		counts:   make([]float64, steps),
		doorOpen: make([]bool, steps),
	}

	lastCount := 0.0
	lastDoor := false
	for i := 0; i < steps; i++ {
		if counts[i] > 0 {
			lastCount = sums[i] / float64(counts[i])
			lastDoor = 2*openCounts[i] > counts[i]
		}
		grid.counts[i] = lastCount
		grid.doorOpen[i] = lastDoor
	}

	return grid
}

// sortedByTime returns a time-ascending copy of readings. The sort is
// stable so that identical inputs always produce identical row order.
func sortedByTime(readings []Reading) []Reading {
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
