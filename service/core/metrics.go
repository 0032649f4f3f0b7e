package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	m "capm/data/models"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capm_analyses_total",
			Help: "Total number of ticker analyses by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capm_analysis_duration_seconds",
			Help:    "Duration of a single ticker analysis in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"kind"},
	)

	outliersRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capm_outliers_removed_total",
			Help: "Total number of excess return observations dropped by the IQR filter",
		},
	)

	degenerateWindows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capm_degenerate_windows_total",
			Help: "Total number of rolling windows marked degenerate",
		},
	)

	priceCacheSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capm_price_cache_syncs_total",
			Help: "Total number of price history cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(analysesTotal, analysisDuration, outliersRemoved, degenerateWindows, priceCacheSyncs)
}

// outcomeLabel buckets an error into a low cardinality label
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, m.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, m.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, m.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, m.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, m.ErrAlignmentEmpty):
		return "alignment_empty"
	case errors.Is(err, m.ErrDegenerateRegression):
		return "degenerate"
	case errors.Is(err, m.ErrInvalidWindow):
		return "invalid_window"
	default:
		return "error"
	}
}
