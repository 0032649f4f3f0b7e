package core

import (
	"fmt"

	m "capm/data/models"
)

// CalculateReturns converts prices into period over period relative changes. The first period has no
// return so the result is one shorter than the input. A zero previous price yields a non-finite value
// that is dropped later when the series is joined.
func CalculateReturns(prices m.TimeSeries) (m.TimeSeries, error) {
	if prices.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices to calculate returns, got %d", m.ErrInsufficientData, prices.Len())
	}

	if err := prices.Validate(); err != nil {
		return nil, err
	}

	res := make(m.TimeSeries, prices.Len()-1)
	for i := 1; i < prices.Len(); i++ {
		prev := prices[i-1].Value
		res[i-1] = m.Observation{
			Timestamp: prices[i].Timestamp,
			Value:     (prices[i].Value - prev) / prev,
		}
	}

	return res, nil
}

// RiskFreeRate de-annualizes a yield series given in percent using simple interest,
// e.g. 4.8 at monthly sampling becomes 0.004.
func RiskFreeRate(yields m.TimeSeries, interval m.Interval) (m.TimeSeries, error) {
	periods := interval.PeriodsPerYear()
	if periods == 0 {
		return nil, fmt.Errorf("%v is not a recognized interval", interval)
	}

	res := make(m.TimeSeries, yields.Len())
	for i, o := range yields {
		res[i] = m.Observation{
			Timestamp: o.Timestamp,
			Value:     o.Value / float64(periods) / 100,
		}
	}

	return res, nil
}
