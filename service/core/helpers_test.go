package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	m "capm/data/models"
)

func monthEnds(n int) []time.Time {
	res := make([]time.Time, n)
	for i := range n {
		res[i] = m.MonthEnd(time.Date(2020, time.January+time.Month(i), 1, 0, 0, 0, 0, time.UTC))
	}
	return res
}

func series(values ...float64) m.TimeSeries {
	dates := monthEnds(len(values))
	res := make(m.TimeSeries, len(values))
	for i, v := range values {
		res[i] = m.Observation{Timestamp: dates[i], Value: v}
	}
	return res
}

// waveReturns is bounded and end heavy so the IQR filter never trims it
func waveReturns(n int, amplitude, offset float64) []float64 {
	res := make([]float64, n)
	for i := range n {
		res[i] = offset + amplitude*math.Sin(float64(i)+0.5)
	}
	return res
}

func pricesFromReturns(returns []float64) []m.PricePoint {
	dates := monthEnds(len(returns) + 1)
	res := make([]m.PricePoint, len(returns)+1)
	res[0] = m.PricePoint{Timestamp: dates[0], Close: 100}
	for i, r := range returns {
		res[i+1] = m.PricePoint{Timestamp: dates[i+1], Close: res[i].Close * (1 + r)}
	}
	return res
}

func constantYields(n int, yield float64) []m.YieldPoint {
	res := make([]m.YieldPoint, n)
	for i, d := range monthEnds(n) {
		res[i] = m.YieldPoint{Timestamp: d, Yield: yield}
	}
	return res
}

type fakePrices struct {
	mu     sync.Mutex
	series map[string][]m.PricePoint
	errs   map[string]error
	calls  map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		series: map[string][]m.PricePoint{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakePrices) FetchPrices(ctx context.Context, symbol string, lookback time.Duration, interval m.Interval) ([]m.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[symbol]++
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	points, ok := f.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %s", m.ErrDataUnavailable, symbol)
	}
	return append([]m.PricePoint(nil), points...), nil
}

func (f *fakePrices) callsFor(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeYields struct {
	mu     sync.Mutex
	points []m.YieldPoint
	err    error
	calls  int
}

func (f *fakeYields) FetchYields(ctx context.Context, maturity string, lookback time.Duration, interval m.Interval) ([]m.YieldPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]m.YieldPoint(nil), f.points...), nil
}

const (
	testMarket       = "SPY"
	testPeriods      = 36
	testYield        = 2.4 // 0.002 monthly
	testAssetBeta    = 1.5
	testAssetDrift   = 0.002
	testMarketWave   = 0.04
	testMarketOffset = 0.008
)

// testProviders serves a market, a ticker that is an exact 1.5x lever of it, and a mirror of the market
func testProviders() (*fakePrices, *fakeYields) {
	market := waveReturns(testPeriods, testMarketWave, testMarketOffset)
	levered := make([]float64, len(market))
	for i, r := range market {
		levered[i] = testAssetBeta*r + testAssetDrift
	}

	prices := newFakePrices()
	prices.series[testMarket] = pricesFromReturns(market)
	prices.series["LEV"] = pricesFromReturns(levered)
	prices.series["MIRROR"] = pricesFromReturns(market)

	yields := &fakeYields{points: constantYields(testPeriods+1, testYield)}

	return prices, yields
}

func testSettings() AnalysisSettings {
	return AnalysisSettings{
		MarketSymbol:     testMarket,
		TreasuryMaturity: "30year",
		Lookback:         20 * 365 * 24 * time.Hour,
		Interval:         m.IntervalMonthly,
		Window:           DefaultRollingWindow,
		Workers:          2,
	}
}
