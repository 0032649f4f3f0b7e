package models

import (
	"time"

	"github.com/guregu/null/v6"
)

type PriceHistoryResult struct {
	Metadata   *PriceHistoryMetadata
	TimeSeries []*PriceHistoryData
}

// PriceHistoryMetadata mirrors the price_history_metadata table and the av "Meta Data" block
type PriceHistoryMetadata struct {
	Id            int32       `db:"id"`
	Symbol        string      `db:"symbol"`
	LastRefreshed time.Time   `db:"last_refreshed"`
	Information   null.String `db:"-"`
	TimeZone      null.String `db:"-"`
}

type PriceHistoryData struct {
	SourceId      int32      `db:"source_id"`
	Timestamp     time.Time  `db:"timestamp"`
	Close         null.Float `db:"close"`
	AdjustedClose null.Float `db:"adjusted_close"`
}

// PricePoint prefers the adjusted close so splits and dividends do not show up as returns.
// ok is false when neither value is present.
func (d *PriceHistoryData) PricePoint() (PricePoint, bool) {
	switch {
	case d.AdjustedClose.Valid:
		return PricePoint{Timestamp: d.Timestamp, Close: d.AdjustedClose.Float64}, true
	case d.Close.Valid:
		return PricePoint{Timestamp: d.Timestamp, Close: d.Close.Float64}, true
	default:
		return PricePoint{}, false
	}
}

type TreasuryYieldResult struct {
	Name     string
	Interval string
	Unit     string
	Data     []YieldPoint
}
