package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	m "capm/data/models"
	q "capm/data/queries"
)

func (pg *Postgres) GetPriceHistoryData(ctx context.Context, symbol string, since time.Time) ([]*m.PriceHistoryData, error) {
	args := pgx.NamedArgs{
		"symbol": symbol,
		"since":  since,
	}

	res, err := Query[m.PriceHistoryData](ctx, pg, q.Get(q.QueryHelper.Select.PriceHistoryData), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query price history by symbol (%s): %w", symbol, err)
	}
	return res, nil
}

// GetMostRecentTimestampForSymbol returns nil when nothing is stored for the symbol yet
func (pg *Postgres) GetMostRecentTimestampForSymbol(ctx context.Context, symbol string) (*time.Time, error) {
	var res *time.Time
	args := pgx.NamedArgs{"symbol": symbol}

	if err := pg.db.QueryRow(ctx, q.Get(q.QueryHelper.Select.MostRecentTimestampBySymbol), args).Scan(&res); err != nil {
		return nil, fmt.Errorf("unable to query most recent timestamp for %s: %w", symbol, err)
	}

	return res, nil
}

func (pg *Postgres) InsertPriceHistoryData(ctx context.Context, data []*m.PriceHistoryData, sourceId int32, tx pgx.Tx) (int64, error) {
	columns := []string{"source_id", "timestamp", "close", "adjusted_close"}

	entries := make([][]any, len(data))
	for i, ent := range data {
		entries[i] = []any{sourceId, ent.Timestamp, ent.Close, ent.AdjustedClose}
	}

	return pg.BulkInsert(ctx, "price_history_data", columns, entries, tx)
}

// DeletePriceHistoryData drops every stored row for the source, the metadata row stays
func (pg *Postgres) DeletePriceHistoryData(ctx context.Context, sourceId int32, tx pgx.Tx) (int64, error) {
	query := q.Get(q.QueryHelper.Delete.PriceHistoryBySourceId)
	args := pgx.NamedArgs{"source_id": sourceId}

	var (
		ct  pgconn.CommandTag
		err error
	)
	if tx == nil {
		ct, err = pg.db.Exec(ctx, query, args)
	} else {
		ct, err = tx.Exec(ctx, query, args)
	}

	if err != nil {
		return 0, fmt.Errorf("error deleting price history for source %d: %w", sourceId, err)
	}
	return ct.RowsAffected(), nil
}
