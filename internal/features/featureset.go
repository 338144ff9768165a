// Package features turns time-ordered occupancy events into the numeric
// vectors the models train and predict on. The field order of a vector is
// always derived from an explicit ordered name list so that training and
// inference can never drift apart.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMissingLagSeed is returned when a feature set requires lag values but
// no recent reading is available to seed them.
var ErrMissingLagSeed = errors.New("no recent reading available to seed lag features")

// Set identifies one of the supported feature sets. Exactly one set is
// active per trained bundle; the bundle's name list is the contract.
type Set string

const (
	// SetCalendarLag uses calendar fields plus lag/rolling occupancy
	// values computed over a 15-minute resampling grid.
	SetCalendarLag Set = "calendar_lag"
	// SetCyclical uses sin/cos hour encoding and business-hours flags,
	// fully computable from the timestamp alone.
	SetCyclical Set = "cyclical"
)

// ParseSet validates a feature set name from configuration.
func ParseSet(s string) (Set, error) {
	switch Set(s) {
	case SetCalendarLag, SetCyclical:
		return Set(s), nil
	}
	return "", fmt.Errorf("unknown feature set %q", s)
}

// Feature names shared between training and inference.
const (
	NameHour          = "hour"
	NameDayOfWeek     = "day_of_week"
	NameDayOfMonth    = "day_of_month"
	NameMonth         = "month"
	NameIsWeekend     = "is_weekend"
	NameLag15m        = "lag_15m"
	NameLag1h         = "lag_1h"
	NameRollingMean1h = "rolling_mean_1h"
	NameHourSin       = "hour_sin"
	NameHourCos       = "hour_cos"
	NameIsBusiness    = "is_business_hours"
)

// Names returns the ordered feature list for the set. The order is part of
// the model contract and must never change for a given set.
func (s Set) Names() []string {
	switch s {
	case SetCalendarLag:
		return []string{
			NameHour, NameDayOfWeek, NameDayOfMonth, NameMonth,
			NameIsWeekend, NameLag15m, NameLag1h, NameRollingMean1h,
		}
	case SetCyclical:
		return []string{
			NameHourSin, NameHourCos, NameDayOfWeek,
			NameIsWeekend, NameIsBusiness,
		}
	}
	return nil
}

// NeedsLagSeed reports whether any of the named features require a recent
// occupancy reading at inference time.
func NeedsLagSeed(names []string) bool {
	for _, n := range names {
		switch n {
		case NameLag15m, NameLag1h, NameRollingMean1h:
			return true
		}
	}
	return false
}

// DayOfWeek returns the weekday with Monday=0 and Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	return DayOfWeek(t) >= 5
}

// IsBusinessHours reports whether the hour of t is within [8, 18).
func IsBusinessHours(t time.Time) bool {
	return t.Hour() >= 8 && t.Hour() < 18
}

// HourSin returns the sine component of the cyclical hour encoding. The
// cyclical form keeps hour 23 and hour 0 adjacent, which the plain hour
// value does not.
func HourSin(t time.Time) float64 {
	return math.Sin(2 * math.Pi * float64(t.Hour()) / 24)
}

// HourCos returns the cosine component of the cyclical hour encoding.
func HourCos(t time.Time) float64 {
	return math.Cos(2 * math.Pi * float64(t.Hour()) / 24)
}

// timeValues computes every timestamp-derived feature for t.
func timeValues(t time.Time) map[string]float64 {
	values := map[string]float64{
		NameHour:       float64(t.Hour()),
		NameDayOfWeek:  float64(DayOfWeek(t)),
		NameDayOfMonth: float64(t.Day()),
		NameMonth:      float64(int(t.Month())),
		NameHourSin:    HourSin(t),
		NameHourCos:    HourCos(t),
	}
	values[NameIsWeekend] = 0
	if IsWeekend(t) {
		values[NameIsWeekend] = 1
	}
	values[NameIsBusiness] = 0
	if IsBusinessHours(t) {
		values[NameIsBusiness] = 1
	}
	return values
}

// assemble orders values by names. Every name must be present; a missing
// name means the caller is building a vector for a contract it cannot
// satisfy, which is the training/inference skew bug class this package
// exists to prevent.
func assemble(names []string, values map[string]float64) ([]float64, error) {
	vector := make([]float64, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("feature %q is not available for this vector", name)
		}
		vector[i] = v
	}
	return vector, nil
}

// InferenceVector builds one feature vector for a target instant, ordered
// by names (the list persisted with the model bundle). latestCount seeds
// the lag slots when the contract includes them; there is no future
// history at inference time, so the single most recent known reading is
// repeated into every lag slot.
func InferenceVector(names []string, t time.Time, latestCount *float64) ([]float64, error) {
	values := timeValues(t)
	if NeedsLagSeed(names) {
		if latestCount == nil {
			return nil, ErrMissingLagSeed
		}
		values[NameLag15m] = *latestCount
		values[NameLag1h] = *latestCount
		values[NameRollingMean1h] = *latestCount
	}
	return assemble(names, values)
}
