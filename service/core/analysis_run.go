package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	m "capm/data/models"
	sm "capm/service/models"
)

const (
	DefaultWorkers = 4
)

// marketData is loaded once per run and copied out to each ticker
type marketData struct {
	riskFree      m.TimeSeries
	marketReturns m.TimeSeries
	marketExcess  ExcessReturnResult
	inputs        MarketInputs
}

func (md *marketData) clone() *marketData {
	return &marketData{
		riskFree:      md.riskFree.Clone(),
		marketReturns: md.marketReturns.Clone(),
		marketExcess: ExcessReturnResult{
			Label:           md.marketExcess.Label,
			Filtered:        md.marketExcess.Filtered.Clone(),
			Unfiltered:      md.marketExcess.Unfiltered.Clone(),
			OutliersRemoved: md.marketExcess.OutliersRemoved,
		},
		inputs: md.inputs,
	}
}

// AnalysisRun caches the risk free and market series for the lifetime of one request.
// It is safe for concurrent use; nothing outlives the run.
type AnalysisRun struct {
	Id       uuid.UUID
	prices   PriceSeriesProvider
	yields   YieldSeriesProvider
	settings AnalysisSettings

	once      sync.Once
	market    *marketData
	marketErr error
}

func NewAnalysisRun(prices PriceSeriesProvider, yields YieldSeriesProvider, settings AnalysisSettings) *AnalysisRun {
	return &AnalysisRun{
		Id:       uuid.New(),
		prices:   prices,
		yields:   yields,
		settings: settings,
	}
}

// Analyze runs the full static pipeline for one ticker
func (ar *AnalysisRun) Analyze(ctx context.Context, ticker string) (*sm.PortfolioMetrics, error) {
	start := time.Now()
	res, err := ar.analyze(ctx, ticker)
	ar.observe("static", ticker, start, err)
	return res, err
}

// RollingAnalyze fits the regression over trailing windows of the aligned excess returns
func (ar *AnalysisRun) RollingAnalyze(ctx context.Context, ticker string, window int) (sm.RollingRegressionSeries, error) {
	start := time.Now()
	res, err := ar.rollingAnalyze(ctx, ticker, window)
	ar.observe("rolling", ticker, start, err)
	return res, err
}

// AnalyzeBatch analyzes tickers in parallel. A failing ticker is reported in its own result and
// never cancels the others. Results keep the order of tickers.
func (ar *AnalysisRun) AnalyzeBatch(ctx context.Context, tickers []string) []sm.TickerResult {
	res := make([]sm.TickerResult, len(tickers))

	workers := ar.settings.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	// plain group, not WithContext: one ticker failing must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(workers)

	for i, ticker := range tickers {
		g.Go(func() error {
			res[i] = sm.TickerResult{Ticker: ticker}

			metrics, err := ar.Analyze(ctx, ticker)
			if err != nil {
				res[i].Error = err.Error()
				return nil
			}

			res[i].Metrics = metrics
			return nil
		})
	}

	_ = g.Wait()

	return res
}

func (ar *AnalysisRun) analyze(ctx context.Context, ticker string) (*sm.PortfolioMetrics, error) {
	md, err := ar.marketData(ctx)
	if err != nil {
		return nil, err
	}

	excess, err := ar.tickerExcess(ctx, ticker, md.riskFree)
	if err != nil {
		return nil, err
	}

	fitted, err := Regress(excess.Filtered, md.marketExcess.Filtered)
	if err != nil {
		return nil, fmt.Errorf("error regressing %s on %s: %w", ticker, ar.settings.MarketSymbol, err)
	}

	return CalculatePerformance(ticker, fitted, excess, md.inputs), nil
}

func (ar *AnalysisRun) rollingAnalyze(ctx context.Context, ticker string, window int) (sm.RollingRegressionSeries, error) {
	if err := ValidateWindow(window); err != nil {
		return nil, err
	}

	md, err := ar.marketData(ctx)
	if err != nil {
		return nil, err
	}

	excess, err := ar.tickerExcess(ctx, ticker, md.riskFree)
	if err != nil {
		return nil, err
	}

	res, err := RollingRegress(excess.Filtered, md.marketExcess.Filtered, window)
	if err != nil {
		return nil, fmt.Errorf("error rolling %s on %s: %w", ticker, ar.settings.MarketSymbol, err)
	}

	return res, nil
}

// marketData loads the shared series on first use and hands back a private copy
func (ar *AnalysisRun) marketData(ctx context.Context) (*marketData, error) {
	ar.once.Do(func() {
		ar.market, ar.marketErr = ar.loadMarketData(ctx)
	})

	if ar.marketErr != nil {
		return nil, ar.marketErr
	}

	return ar.market.clone(), nil
}

func (ar *AnalysisRun) loadMarketData(ctx context.Context) (*marketData, error) {
	interval := ar.settings.Interval

	yields, err := ar.yields.FetchYields(ctx, ar.settings.TreasuryMaturity, ar.settings.Lookback, interval)
	if err != nil {
		return nil, fmt.Errorf("error getting %s treasury yields: %w", ar.settings.TreasuryMaturity, err)
	}

	riskFree, err := RiskFreeRate(m.YieldSeries(yields), interval)
	if err != nil {
		return nil, err
	}

	marketReturns, err := ar.returns(ctx, ar.settings.MarketSymbol)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("run", ar.Id.String()).
		Str("market", ar.settings.MarketSymbol).
		Int("riskFree", riskFree.Len()).
		Int("marketReturns", marketReturns.Len()).
		Msg("loaded market data")

	return &marketData{
		riskFree:      riskFree,
		marketReturns: marketReturns,
		marketExcess:  ExcessReturns(ar.settings.MarketSymbol, marketReturns, riskFree),
		inputs:        MarketInputsFrom(riskFree, marketReturns, interval),
	}, nil
}

func (ar *AnalysisRun) tickerExcess(ctx context.Context, ticker string, riskFree m.TimeSeries) (ExcessReturnResult, error) {
	returns, err := ar.returns(ctx, ticker)
	if err != nil {
		return ExcessReturnResult{}, err
	}

	return ExcessReturns(ticker, returns, riskFree), nil
}

func (ar *AnalysisRun) returns(ctx context.Context, symbol string) (m.TimeSeries, error) {
	prices, err := ar.prices.FetchPrices(ctx, symbol, ar.settings.Lookback, ar.settings.Interval)
	if err != nil {
		return nil, fmt.Errorf("error getting prices for %s: %w", symbol, err)
	}

	returns, err := CalculateReturns(m.PriceSeries(prices))
	if err != nil {
		return nil, fmt.Errorf("error calculating returns for %s: %w", symbol, err)
	}

	return returns, nil
}

func (ar *AnalysisRun) observe(kind, ticker string, start time.Time, err error) {
	elapsed := time.Since(start)
	analysesTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
	analysisDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("run", ar.Id.String()).Str("kind", kind).Str("ticker", ticker).Dur("elapsed", elapsed).Msg("analysis finished")
}
