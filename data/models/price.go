package models

import "time"

// PricePoint is a periodic close, never mutated after fetch
type PricePoint struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Close     float64   `json:"close" db:"close"`
}

// YieldPoint is an annualized yield in percent, e.g. 4.65 for the 30 year treasury
type YieldPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Yield     float64   `json:"yield"`
}

func PriceSeries(points []PricePoint) TimeSeries {
	res := make(TimeSeries, len(points))
	for i, p := range points {
		res[i] = Observation{Timestamp: p.Timestamp, Value: p.Close}
	}
	return res
}

func YieldSeries(points []YieldPoint) TimeSeries {
	res := make(TimeSeries, len(points))
	for i, p := range points {
		res[i] = Observation{Timestamp: p.Timestamp, Value: p.Yield}
	}
	return res
}
