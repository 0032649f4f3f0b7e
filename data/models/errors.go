package models

import "errors"

// Failure taxonomy for the analysis pipeline. Callers wrap these with fmt.Errorf("...: %w")
// and match them with errors.Is.
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrDegenerateRegression = errors.New("degenerate regression, market excess return has zero variance")
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrAlignmentEmpty       = errors.New("series share no common dates")
	ErrInvalidWindow        = errors.New("invalid rolling window")
	ErrRateLimited          = errors.New("rate limited by data provider")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
)
