package core

import (
	"math"

	"github.com/guregu/null/v6"

	m "capm/data/models"
	sm "capm/service/models"
)

// MarketInputs are the per run averages shared by every ticker, as periodic fractions
type MarketInputs struct {
	MeanRiskFree     float64 // mean periodic risk free rate
	MeanMarketReturn float64 // E[Rm], mean periodic market return
	PeriodsPerYear   int
}

// CalculatePerformance derives the annualized ratios from a fit and the unfiltered asset excess returns
// (percentage points). Sharpe and Treynor are left null when their divisor is ~0.
func CalculatePerformance(ticker string, fitted sm.RegressionResult, excess ExcessReturnResult, market MarketInputs) *sm.PortfolioMetrics {
	periods := float64(market.PeriodsPerYear)
	values := excess.Unfiltered.Values()
	meanExcess := Mean(values)

	res := &sm.PortfolioMetrics{
		Ticker:          ticker,
		Beta:            fitted.Beta,
		Alpha:           fitted.Alpha,
		AnnualizedAlpha: fitted.Alpha * periods,
		RSquared:        fitted.RSquared,
		ExpectedReturn:  ExpectedReturn(fitted.Beta, market.MeanRiskFree, market.MeanMarketReturn),
		Observations:    fitted.Observations,
		OutliersRemoved: excess.OutliersRemoved,
	}

	if math.Abs(fitted.Beta) >= betaTolerance && isFinite(meanExcess) {
		res.TreynorRatio = null.FloatFrom(meanExcess / fitted.Beta * periods)
	}

	if len(values) >= 2 {
		stdDev := SampleStdDev(values)
		if stdDev >= stdDevTolerance && isFinite(stdDev) {
			res.SharpeRatio = null.FloatFrom(meanExcess / stdDev * math.Sqrt(periods))
		}
	}

	return res
}

// ExpectedReturn is the CAPM expected periodic return in percent, rf + beta*(E[Rm] - rf)
func ExpectedReturn(beta, riskFree, marketReturn float64) float64 {
	return 100 * (riskFree + beta*(marketReturn-riskFree))
}

// MarketInputsFrom averages the risk free series and the market returns, ignoring non-finite values
func MarketInputsFrom(riskFree, marketReturns m.TimeSeries, interval m.Interval) MarketInputs {
	return MarketInputs{
		MeanRiskFree:     Mean(finiteValues(riskFree)),
		MeanMarketReturn: Mean(finiteValues(marketReturns)),
		PeriodsPerYear:   interval.PeriodsPerYear(),
	}
}

func finiteValues(ts m.TimeSeries) []float64 {
	res := make([]float64, 0, ts.Len())
	for _, o := range ts {
		if isFinite(o.Value) {
			res = append(res, o.Value)
		}
	}
	return res
}
