package models

import (
	"fmt"
	"strings"
)

// Interval specifies the sampling frequency of a price or yield series.
type Interval uint8

const (
	IntervalDaily Interval = iota
	IntervalWeekly
	IntervalMonthly
)

// periods per year, used for annualization and for de-annualizing yields
const (
	Daily   = 252
	Weekly  = 52
	Monthly = 12
)

func (i Interval) Name() string {
	switch i {
	case IntervalDaily:
		return "daily"
	case IntervalWeekly:
		return "weekly"
	case IntervalMonthly:
		return "monthly"
	default:
		return ""
	}
}

func (i Interval) PeriodsPerYear() int {
	switch i {
	case IntervalDaily:
		return Daily
	case IntervalWeekly:
		return Weekly
	case IntervalMonthly:
		return Monthly
	default:
		return 0
	}
}

func (i Interval) String() string {
	return i.Name()
}

func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "1d":
		return IntervalDaily, nil
	case "weekly", "1wk":
		return IntervalWeekly, nil
	case "monthly", "1mo", "":
		return IntervalMonthly, nil
	default:
		return 0, fmt.Errorf("%s is not a recognized interval", s)
	}
}
