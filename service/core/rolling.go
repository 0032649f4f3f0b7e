package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	m "capm/data/models"
	sm "capm/service/models"
)

const (
	MinRollingWindow     = 6
	MaxRollingWindow     = 36
	DefaultRollingWindow = 12
)

// RollingRegress refits the regression over every trailing window of the aligned series. The first
// window-1 periods emit nothing, so the result has max(0, n-window+1) points. Windows whose market
// values have no variance are marked degenerate instead of failing the run.
func RollingRegress(asset, market m.TimeSeries, window int) (sm.RollingRegressionSeries, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: rolling window must be at least 2, got %d", m.ErrInvalidWindow, window)
	}

	dates, y, x := JoinSeries(asset, market)
	n := len(dates)
	if n < window {
		return sm.RollingRegressionSeries{}, nil
	}

	res := make(sm.RollingRegressionSeries, 0, n-window+1)
	for end := window; end <= n; end++ {
		start := end - window
		point := sm.RollingPoint{Timestamp: dates[end-1]}

		result, err := fit(x[start:end], y[start:end])
		switch {
		case errors.Is(err, m.ErrDegenerateRegression):
			point.Degenerate = true
			point.Observations = window
			log.Debug().Time("windowEnd", point.Timestamp).Int("window", window).Msg("skipping degenerate window")
		case err != nil:
			return nil, err
		default:
			point.RegressionResult = result
		}

		res = append(res, point)
	}

	if degenerate := res.DegenerateCount(); degenerate > 0 {
		degenerateWindows.Add(float64(degenerate))
	}

	return res, nil
}

// ValidateWindow enforces the range accepted from callers
func ValidateWindow(window int) error {
	if window < MinRollingWindow || window > MaxRollingWindow {
		return fmt.Errorf("%w: window must be between %d and %d periods, got %d", m.ErrInvalidWindow, MinRollingWindow, MaxRollingWindow, window)
	}
	return nil
}
