package alpha_vantage

import (
	m "capm/data/models"
)

// TimeSeries specifies which av price endpoint to query.
type TimeSeries uint8

const (
	TimeSeriesDaily TimeSeries = iota
	TimeSeriesDailyAdjusted
	TimeSeriesWeekly
	TimeSeriesWeeklyAdjusted
	TimeSeriesMonthly
	TimeSeriesMonthlyAdjusted
)

// TimeSeriesFor picks the adjusted endpoint for a sampling interval
func TimeSeriesFor(interval m.Interval) TimeSeries {
	switch interval {
	case m.IntervalDaily:
		return TimeSeriesDailyAdjusted
	case m.IntervalWeekly:
		return TimeSeriesWeeklyAdjusted
	default:
		return TimeSeriesMonthlyAdjusted
	}
}

func (t TimeSeries) Function() string {
	switch t {
	case TimeSeriesDaily:
		return "TIME_SERIES_DAILY"
	case TimeSeriesDailyAdjusted:
		return "TIME_SERIES_DAILY_ADJUSTED"
	case TimeSeriesWeekly:
		return "TIME_SERIES_WEEKLY"
	case TimeSeriesWeeklyAdjusted:
		return "TIME_SERIES_WEEKLY_ADJUSTED"
	case TimeSeriesMonthly:
		return "TIME_SERIES_MONTHLY"
	case TimeSeriesMonthlyAdjusted:
		return "TIME_SERIES_MONTHLY_ADJUSTED"
	default:
		return ""
	}
}

// TimeSeriesKey is the top level json key holding the dated values
func (t TimeSeries) TimeSeriesKey() string {
	switch t {
	case TimeSeriesDaily:
		return "Time Series (Daily)"
	case TimeSeriesDailyAdjusted:
		return "Time Series (Daily)"
	case TimeSeriesWeekly:
		return "Weekly Time Series"
	case TimeSeriesWeeklyAdjusted:
		return "Weekly Adjusted Time Series"
	case TimeSeriesMonthly:
		return "Monthly Time Series"
	case TimeSeriesMonthlyAdjusted:
		return "Monthly Adjusted Time Series"
	default:
		return ""
	}
}
