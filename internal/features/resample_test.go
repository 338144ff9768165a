package features

import (
	"reflect"
	"testing"
	"time"
)

func reading(t time.Time, count float64, doorOpen bool) Reading {
	return Reading{Timestamp: t, PersonCount: count, DoorOpen: doorOpen}
}

func TestResampleForwardFill(t *testing.T) {
	base := time.Date(2025, 6, 19, 14, 0, 0, 0, time.UTC)
	readings := []Reading{
		reading(base.Add(2*time.Minute), 2, true),
		reading(base.Add(7*time.Minute), 4, true),
		// bins 1 and 2 empty
		reading(base.Add(50*time.Minute), 8, false),
	}

	grid := resample(readings)
	if !grid.start.Equal(base) {
		t.Fatalf("grid start = %v, want %v", grid.start, base)
	}

	wantCounts := []float64{3, 3, 3, 8}
	if !reflect.DeepEqual(grid.counts, wantCounts) {
		t.Errorf("counts = %v, want %v", grid.counts, wantCounts)
	}

	wantDoor := []bool{true, true, true, false}
	if !reflect.DeepEqual(grid.doorOpen, wantDoor) {
		t.Errorf("doorOpen = %v, want %v", grid.doorOpen, wantDoor)
	}
}

func TestLaggedRows(t *testing.T) {
	base := time.Date(2025, 6, 19, 14, 0, 0, 0, time.UTC)
	// One reading per 15-minute bin, counts 0..7
	var readings []Reading
	for i := 0; i < 8; i++ {
		readings = append(readings, reading(base.Add(time.Duration(i)*ResampleBin), float64(i), i%2 == 0))
	}

	rows, err := BuildTrainingRows(SetCalendarLag, readings, 0)
	if err != nil {
		t.Fatalf("BuildTrainingRows: %v", err)
	}

	// Bins 0-3 lack a full lag history and must be dropped
	if len(rows) != 4 {
		t.Fatalf("row count = %d, want 4", len(rows))
	}

	first := rows[0]
	if !first.Instant.Equal(base.Add(4 * ResampleBin)) {
		t.Errorf("first row instant = %v, want %v", first.Instant, base.Add(4*ResampleBin))
	}
	if first.Occupancy != 4 {
		t.Errorf("first row label = %v, want 4", first.Occupancy)
	}

	names := SetCalendarLag.Names()
	get := func(row Row, name string) float64 {
		for i, n := range names {
			if n == name {
				return row.Values[i]
			}
		}
		t.Fatalf("feature %q not in set", name)
		return 0
	}

	if got := get(first, NameLag15m); got != 3 {
		t.Errorf("lag_15m = %v, want 3", got)
	}
	if got := get(first, NameLag1h); got != 0 {
		t.Errorf("lag_1h = %v, want 0", got)
	}
	// trailing 4-bin mean including the current bin: (1+2+3+4)/4
	if got := get(first, NameRollingMean1h); got != 2.5 {
		t.Errorf("rolling_mean_1h = %v, want 2.5", got)
	}
	if got := get(first, NameHour); got != 15 {
		t.Errorf("hour = %v, want 15", got)
	}
}

func TestLaggedRowsInsufficientHistory(t *testing.T) {
	base := time.Date(2025, 6, 19, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		readings []Reading
	}{
		{"no readings", nil},
		{"single reading", []Reading{reading(base, 3, true)}},
		{"one hour of readings", []Reading{
			reading(base, 1, true),
			reading(base.Add(15*time.Minute), 2, true),
			reading(base.Add(30*time.Minute), 3, true),
			reading(base.Add(45*time.Minute), 4, true),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := BuildTrainingRows(SetCalendarLag, tt.readings, 0)
			if err != nil {
				t.Fatalf("BuildTrainingRows: %v", err)
			}
			if len(rows) != 0 {
				t.Errorf("row count = %d, want 0 after dropping incomplete lag rows", len(rows))
			}
		})
	}
}

func TestCyclicalRowsFromSnapshots(t *testing.T) {
	base := time.Date(2025, 6, 19, 14, 0, 0, 0, time.UTC)
	readings := []Reading{
		reading(base.Add(10*time.Minute), 2, true),
		reading(base.Add(30*time.Minute), 4, true),
		reading(base.Add(150*time.Minute), 6, false),
	}

	rows, err := BuildTrainingRows(SetCyclical, readings, 2*time.Hour)
	if err != nil {
		t.Fatalf("BuildTrainingRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d, want 2 (one per non-empty bucket)", len(rows))
	}
	if rows[0].Occupancy != 3 {
		t.Errorf("first bucket label = %v, want mean 3", rows[0].Occupancy)
	}
	if !rows[0].DoorOpen || rows[1].DoorOpen {
		t.Errorf("door labels = %v/%v, want true/false", rows[0].DoorOpen, rows[1].DoorOpen)
	}
	if len(rows[0].Values) != len(SetCyclical.Names()) {
		t.Errorf("vector length = %d, want %d", len(rows[0].Values), len(SetCyclical.Names()))
	}
}

func TestBuildTrainingRowsDeterminism(t *testing.T) {
	base := time.Date(2025, 6, 19, 6, 0, 0, 0, time.UTC)
	var readings []Reading
	for i := 0; i < 50; i++ {
		readings = append(readings, reading(base.Add(time.Duration(i*11)*time.Minute), float64(i%6), i%3 == 0))
	}

	for _, set := range []Set{SetCalendarLag, SetCyclical} {
		first, err := BuildTrainingRows(set, readings, 2*time.Hour)
		if err != nil {
			t.Fatalf("%s: %v", set, err)
		}
		second, err := BuildTrainingRows(set, readings, 2*time.Hour)
		if err != nil {
			t.Fatalf("%s: %v", set, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: identical inputs produced different rows", set)
		}
	}
}
