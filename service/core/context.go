package core

import (
	"context"
	"time"

	m "capm/data/models"
	r "capm/data/repos"
)

// PriceSeriesProvider returns ascending periodic closes over the lookback window.
// ErrDataUnavailable when the symbol is unknown or nothing falls in range.
type PriceSeriesProvider interface {
	FetchPrices(ctx context.Context, symbol string, lookback time.Duration, interval m.Interval) ([]m.PricePoint, error)
}

// YieldSeriesProvider returns ascending annualized yields in percent
type YieldSeriesProvider interface {
	FetchYields(ctx context.Context, maturity string, lookback time.Duration, interval m.Interval) ([]m.YieldPoint, error)
}

type AnalysisSettings struct {
	MarketSymbol     string
	TreasuryMaturity string
	Lookback         time.Duration
	Interval         m.Interval
	Window           int
	Workers          int
}

type ServiceContext struct {
	PostgresConnection *r.Postgres // nil when the price cache is disabled
	Prices             PriceSeriesProvider
	Yields             YieldSeriesProvider
	Settings           AnalysisSettings
	Tickers            []string
}

// NewAnalysisRun starts a run scoped cache over the service providers
func (sc *ServiceContext) NewAnalysisRun() *AnalysisRun {
	return NewAnalysisRun(sc.Prices, sc.Yields, sc.Settings)
}
