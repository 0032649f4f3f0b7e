package core

import (
	"time"

	"github.com/rs/zerolog/log"

	m "capm/data/models"
)

// ExcessReturnResult carries the joined excess series before and after outlier removal.
// Unfiltered feeds the sharpe and treynor means; Filtered feeds the regressions.
type ExcessReturnResult struct {
	Label           string
	Filtered        m.TimeSeries
	Unfiltered      m.TimeSeries
	OutliersRemoved int
}

// JoinSeries inner joins two series on date, keeping a's order. Dates where either value is
// missing or non-finite are dropped.
func JoinSeries(a, b m.TimeSeries) (dates []time.Time, left, right []float64) {
	lookup := b.Lookup()

	dates = make([]time.Time, 0, a.Len())
	left = make([]float64, 0, a.Len())
	right = make([]float64, 0, a.Len())

	for _, o := range a {
		bv, ok := lookup[o.Timestamp]
		if !ok || !isFinite(o.Value) || !isFinite(bv) {
			continue
		}
		dates = append(dates, o.Timestamp)
		left = append(left, o.Value)
		right = append(right, bv)
	}

	return
}

// ExcessReturns aligns returns with the risk free rate and expresses the difference in percentage points,
// then drops values outside the IQR fences. An empty join is an empty result, not an error.
func ExcessReturns(label string, returns, riskFree m.TimeSeries) ExcessReturnResult {
	dates, r, rf := JoinSeries(returns, riskFree)

	unfiltered := make(m.TimeSeries, len(dates))
	for i := range dates {
		unfiltered[i] = m.Observation{
			Timestamp: dates[i],
			Value:     (r[i] - rf[i]) * 100,
		}
	}

	filtered, removed := RemoveOutliersIQR(unfiltered)
	if removed > 0 {
		outliersRemoved.Add(float64(removed))
		log.Info().Str("series", label).Int("removed", removed).Int("remaining", filtered.Len()).Msg("removed outliers")
	}

	return ExcessReturnResult{
		Label:           label,
		Filtered:        filtered,
		Unfiltered:      unfiltered,
		OutliersRemoved: removed,
	}
}

// RemoveOutliersIQR keeps values within [Q1 - 1.5*IQR, Q3 + 1.5*IQR], inclusive. The input is not modified.
func RemoveOutliersIQR(ts m.TimeSeries) (m.TimeSeries, int) {
	if ts.Len() == 0 {
		return m.TimeSeries{}, 0
	}

	lower, upper := IQRBounds(ts.Values())

	res := make(m.TimeSeries, 0, ts.Len())
	for _, o := range ts {
		if o.Value < lower || o.Value > upper {
			continue
		}
		res = append(res, o)
	}

	return res, ts.Len() - res.Len()
}
