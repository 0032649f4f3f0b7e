package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// RegressionResult is the OLS fit of asset excess returns on market excess returns
type RegressionResult struct {
	Beta         float64 `json:"beta"`
	Alpha        float64 `json:"alpha"`
	RSquared     float64 `json:"rSquared"`
	Observations int     `json:"observations"`
}

// RollingPoint is one window position, keyed on the most recent date in the window.
// Degenerate windows keep their position with zero values so the series length stays n-w+1.
type RollingPoint struct {
	Timestamp time.Time `json:"timestamp"`
	RegressionResult
	Degenerate bool `json:"degenerate"`
}

type RollingRegressionSeries []RollingPoint

// DegenerateCount is the number of windows that could not be fit
func (rs RollingRegressionSeries) DegenerateCount() int {
	count := 0
	for _, p := range rs {
		if p.Degenerate {
			count++
		}
	}
	return count
}

type RollingResponse struct {
	Ticker string                  `json:"ticker"`
	Window int                     `json:"window"`
	Points RollingRegressionSeries `json:"points"`
}

// PortfolioMetrics is one row per analyzed ticker. Sharpe and Treynor are null when their divisor is ~0.
type PortfolioMetrics struct {
	Ticker          string     `json:"ticker"`
	Beta            float64    `json:"beta"`
	Alpha           float64    `json:"alpha"`
	AnnualizedAlpha float64    `json:"annualizedAlpha"`
	RSquared        float64    `json:"rSquared"`
	ExpectedReturn  float64    `json:"expectedReturn"` // percent
	SharpeRatio     null.Float `json:"sharpeRatio"`
	TreynorRatio    null.Float `json:"treynorRatio"`
	Observations    int        `json:"observations"`
	OutliersRemoved int        `json:"outliersRemoved"`
}

type TickerResult struct {
	Ticker  string            `json:"ticker"`
	Metrics *PortfolioMetrics `json:"metrics"`
	Error   string            `json:"error,omitempty"`
}

type BatchResponse struct {
	RunId   string         `json:"runId"`
	Results []TickerResult `json:"results"`
}
