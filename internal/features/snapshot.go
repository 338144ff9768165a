package features

import (
	"sort"
	"time"
)

// Reading is one raw occupancy observation, decoupled from the store's row
// representation.
type Reading struct {
	Timestamp   time.Time
	PersonCount float64
	DoorOpen    bool
	EventType   string
}

// Snapshot is the aggregate of all readings whose timestamps floor into one
// fixed-width bucket. Buckets with no readings are omitted, never
// synthesized.
type Snapshot struct {
	BucketStart time.Time
	MeanCount   float64
	MaxCount    float64
	MinCount    float64
	DoorOpen    bool // majority vote: open in more than half of the readings
	DoorOpenPct float64
	EventCounts map[string]int
	Readings    int
}

// BucketStart floors t onto the bucket grid for the given width. The grid
// is anchored at the Unix epoch in UTC, so bucket boundaries depend only on
// wall-clock time, never on the data.
func BucketStart(t time.Time, width time.Duration) time.Time {
	return t.UTC().Truncate(width)
}

// Aggregate reduces readings into one snapshot per non-empty bucket,
// ordered by bucket start. Accumulation runs over a time-sorted copy of
// the input so that two runs over the same readings produce bit-identical
// snapshots regardless of input order. Floating-point sums are not
// associative, so a canonical accumulation order is required, not just
// order-independent bucket assignment.
func Aggregate(readings []Reading, width time.Duration) []Snapshot {
	if len(readings) == 0 || width <= 0 {
		return nil
	}

	buckets := make(map[time.Time]*Snapshot)
	doorOpen := make(map[time.Time]int)

	for _, r := range sortedByTime(readings) {
		start := BucketStart(r.Timestamp, width)
		snap, ok := buckets[start]
		if !ok {
			snap = &Snapshot{
				BucketStart: start,
				MaxCount:    r.PersonCount,
				MinCount:    r.PersonCount,
				EventCounts: make(map[string]int),
			}
			buckets[start] = snap
		}

		snap.Readings++
		snap.MeanCount += r.PersonCount
		if r.PersonCount > snap.MaxCount {
			snap.MaxCount = r.PersonCount
		}
		if r.PersonCount < snap.MinCount {
			snap.MinCount = r.PersonCount
		}
		if r.DoorOpen {
			doorOpen[start]++
		}
		if r.EventType != "" {
			snap.EventCounts[r.EventType]++
		}
	}

	snapshots := make([]Snapshot, 0, len(buckets))
	for start, snap := range buckets {
		snap.MeanCount /= float64(snap.Readings)
		snap.DoorOpenPct = float64(doorOpen[start]) / float64(snap.Readings)
		snap.DoorOpen = 2*doorOpen[start] > snap.Readings
		snapshots = append(snapshots, *snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].BucketStart.Before(snapshots[j].BucketStart)
	})

	return snapshots
}
