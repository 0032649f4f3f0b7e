package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrUnorderedSeries = errors.New("series dates are not strictly increasing")

// Observation is a single dated value of a TimeSeries
type Observation struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Value     float64   `json:"value" db:"value"`
}

// TimeSeries is ordered by Timestamp, ascending, with no duplicate dates.
type TimeSeries []Observation

func (ts TimeSeries) Len() int {
	return len(ts)
}

func (ts TimeSeries) Values() []float64 {
	res := make([]float64, len(ts))
	for i, o := range ts {
		res[i] = o.Value
	}
	return res
}

func (ts TimeSeries) Clone() TimeSeries {
	return slices.Clone(ts)
}

// Lookup indexes the series by date for joins
func (ts TimeSeries) Lookup() map[time.Time]float64 {
	res := make(map[time.Time]float64, len(ts))
	for _, o := range ts {
		res[o.Timestamp] = o.Value
	}
	return res
}

// Validate checks the ordering invariant, returning ErrUnorderedSeries on the first violation
func (ts TimeSeries) Validate() error {
	for i := 1; i < len(ts); i++ {
		if !ts[i].Timestamp.After(ts[i-1].Timestamp) {
			return fmt.Errorf("%w: %s follows %s", ErrUnorderedSeries,
				ts[i].Timestamp.Format(time.DateOnly), ts[i-1].Timestamp.Format(time.DateOnly))
		}
	}
	return nil
}

// MonthEnd maps any time to the last calendar day of its month at midnight UTC.
// Stock closes land on the last trading day and treasury yields on the first of the month,
// so both sources are keyed on the month end before joining.
func MonthEnd(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}

// PeriodKey normalizes a timestamp to the key used for alignment at the given interval
func PeriodKey(t time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalMonthly:
		return MonthEnd(t)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
