package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	ex "capm/data/extensions"
	m "capm/data/models"
	av "capm/service/api/alpha_vantage"
)

const (
	DefaultRefreshAfter = 7 * 24 * time.Hour
)

// PriceHistoryStore is the slice of the postgres repos the cache needs
type PriceHistoryStore interface {
	GetMetaDataBySymbol(ctx context.Context, symbol string) (*m.PriceHistoryMetadata, error)
	InsertNewMetaData(ctx context.Context, metadata *m.PriceHistoryMetadata, tx pgx.Tx) error
	UpdateLastRefreshedDate(ctx context.Context, symbol string, lastRefreshed time.Time, tx pgx.Tx) error
	GetMostRecentTimestampForSymbol(ctx context.Context, symbol string) (*time.Time, error)
	GetPriceHistoryData(ctx context.Context, symbol string, since time.Time) ([]*m.PriceHistoryData, error)
	InsertPriceHistoryData(ctx context.Context, data []*m.PriceHistoryData, sourceId int32, tx pgx.Tx) (int64, error)
	DeletePriceHistoryData(ctx context.Context, sourceId int32, tx pgx.Tx) (int64, error)
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// PriceHistorySource is the upstream the cache syncs from
type PriceHistorySource interface {
	StockTimeSeries(ctx context.Context, timeSeries av.TimeSeries, ticker string) (*m.PriceHistoryResult, error)
}

// CachedPriceProvider serves prices from postgres, syncing a symbol from upstream when it is new
// or has not been refreshed within RefreshAfter.
type CachedPriceProvider struct {
	store        PriceHistoryStore
	source       PriceHistorySource
	refreshAfter time.Duration
	now          func() time.Time

	// syncs are serialized so a symbol is never inserted twice by concurrent tickers
	mu sync.Mutex
}

func NewCachedPriceProvider(store PriceHistoryStore, source PriceHistorySource, refreshAfter time.Duration) *CachedPriceProvider {
	if refreshAfter <= 0 {
		refreshAfter = DefaultRefreshAfter
	}
	return &CachedPriceProvider{
		store:        store,
		source:       source,
		refreshAfter: refreshAfter,
		now:          time.Now,
	}
}

func (cp *CachedPriceProvider) FetchPrices(ctx context.Context, symbol string, lookback time.Duration, interval m.Interval) ([]m.PricePoint, error) {
	_, syncErr := cp.SyncSymbolTimeSeriesData(ctx, symbol, interval)
	if syncErr != nil {
		// stale rows are still better than nothing, the read below decides
		log.Warn().Err(syncErr).Str("symbol", symbol).Msg("error syncing price history, serving cached data")
		priceCacheSyncs.WithLabelValues("error").Inc()
	}

	since := cp.now().Add(-lookback)
	data, err := cp.store.GetPriceHistoryData(ctx, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("error reading cached prices for %s: %w", symbol, err)
	}

	if len(data) == 0 && syncErr != nil {
		return nil, fmt.Errorf("no cached prices for %s: %w", symbol, syncErr)
	}

	return av.PricePoints(data, since, interval, symbol)
}

// SyncSymbolTimeSeriesData pulls the upstream series for symbol and replaces what is stored for it.
// Adjusted closes are restated upstream after every split or dividend, so appending only the newer rows would
// mix two adjustment bases. Returns the last refreshed date; a symbol refreshed within the refresh interval is left alone.
func (cp *CachedPriceProvider) SyncSymbolTimeSeriesData(ctx context.Context, symbol string, interval m.Interval) (time.Time, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	md, err := cp.store.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("error determining if meta data exists in sync data: %w", err)
	}

	if md != nil && md.LastRefreshed.After(cp.now().Add(-cp.refreshAfter)) {
		log.Debug().Str("symbol", symbol).Str("lastRefreshed", ex.FmtShort(md.LastRefreshed)).Msg("price history is fresh, skipping sync")
		priceCacheSyncs.WithLabelValues("fresh").Inc()
		return md.LastRefreshed, nil
	}

	tsr, err := cp.source.StockTimeSeries(ctx, av.TimeSeriesFor(interval), symbol)
	if err != nil {
		return time.Time{}, err
	}
	if len(tsr.TimeSeries) == 0 {
		return time.Time{}, fmt.Errorf("%w: upstream returned no rows for %s", m.ErrDataUnavailable, symbol)
	}

	var mrd *time.Time
	if md != nil {
		mrd, err = cp.store.GetMostRecentTimestampForSymbol(ctx, symbol)
		if err != nil {
			return time.Time{}, fmt.Errorf("error getting most recent time series date for symbol %s: %w", symbol, err)
		}
	}

	newRows := ex.FilterMultiplePtr(tsr.TimeSeries, func(d *m.PriceHistoryData) bool {
		return mrd == nil || d.Timestamp.After(*mrd)
	})

	var removed, ra int64
	err = cp.store.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if md == nil {
			log.Info().Str("symbol", symbol).Msg("adding new symbol to db")
			md = &m.PriceHistoryMetadata{
				Symbol:        symbol,
				LastRefreshed: tsr.Metadata.LastRefreshed,
			}
			if err := cp.store.InsertNewMetaData(ctx, md, tx); err != nil {
				return fmt.Errorf("error adding %s to db: %w", symbol, err)
			}
		} else {
			removed, err = cp.store.DeletePriceHistoryData(ctx, md.Id, tx)
			if err != nil {
				return fmt.Errorf("error clearing price history data: %w", err)
			}
		}

		ra, err = cp.store.InsertPriceHistoryData(ctx, tsr.TimeSeries, md.Id, tx)
		if err != nil {
			return fmt.Errorf("error inserting price history data: %w", err)
		}

		// the refresh interval counts from the sync, not from the last trading day
		return cp.store.UpdateLastRefreshedDate(ctx, symbol, cp.now(), tx)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("error syncing %s: %w", symbol, err)
	}

	priceCacheSyncs.WithLabelValues("synced").Inc()
	log.Info().
		Str("symbol", symbol).
		Int("received", len(tsr.TimeSeries)).
		Int("new", len(newRows)).
		Int64("replaced", removed).
		Int64("stored", ra).
		Msg("synced price history")

	return tsr.Metadata.LastRefreshed, nil
}
