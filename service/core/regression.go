package core

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	m "capm/data/models"
	sm "capm/service/models"
)

// Regress fits asset = alpha + beta*market over the dates both series share
func Regress(asset, market m.TimeSeries) (sm.RegressionResult, error) {
	dates, y, x := JoinSeries(asset, market)

	if len(dates) == 0 {
		return sm.RegressionResult{}, fmt.Errorf("%w: %d asset and %d market observations share no dates", m.ErrAlignmentEmpty, asset.Len(), market.Len())
	}

	return fit(x, y)
}

// fit runs OLS on already aligned observations
func fit(x, y []float64) (sm.RegressionResult, error) {
	if len(x) < 2 {
		return sm.RegressionResult{}, fmt.Errorf("%w: need at least 2 aligned observations, got %d", m.ErrInsufficientData, len(x))
	}

	if isDegenerate(x) {
		return sm.RegressionResult{}, fmt.Errorf("%w: market excess returns have zero variance over %d observations", m.ErrDegenerateRegression, len(x))
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)

	// a flat response leaves nothing to explain, R² would be 0/0
	rSquared := 0.0
	if !isDegenerate(y) {
		rSquared = stat.RSquared(x, y, nil, alpha, beta)
	}
	if !isFinite(rSquared) {
		rSquared = 0
	}

	return sm.RegressionResult{
		Beta:         beta,
		Alpha:        alpha,
		RSquared:     rSquared,
		Observations: len(x),
	}, nil
}
