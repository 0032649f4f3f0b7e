package repos

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	ex "capm/data/extensions"
	m "capm/data/models"
	q "capm/data/queries"
)

func Test_Base_CanGetConnectionAndPing(t *testing.T) {
	ctx := context.Background()
	pg := getConnection(t, ctx)

	if err := pg.Ping(ctx); err != nil {
		t.Errorf("error pinging postgres database: %s", err)
	}
}

func Test_PriceHistoryMetaDataRepo_CanInsertAndGet(t *testing.T) {
	symbol := "_TEST"

	testMetaData := m.PriceHistoryMetadata{
		Symbol:        symbol,
		LastRefreshed: time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC),
	}

	ctx := context.Background()
	pg := getConnection(t, ctx)

	exists, err := pg.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error determining if meta symbol exists for %s (should be false): %s", symbol, err)
	}
	if exists != nil {
		t.Fatalf("symbol %s has not been inserted yet, so exists should be false", symbol)
	}

	if err := pg.InsertNewMetaData(ctx, &testMetaData, nil); err != nil {
		t.Fatalf("error inserting new meta data: %s", err)
	}
	if testMetaData.Id == 0 {
		t.Fatalf("id for test meta data failed to set properly")
	}

	t.Cleanup(func() { deleteTestSymbol(t, pg, testMetaData.Id) })

	res, err := pg.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting meta data by symbol, %s", err)
	}

	ex.AssertAreEqual(t, "id", testMetaData.Id, res.Id)
	ex.AssertAreEqual(t, "symbol", testMetaData.Symbol, res.Symbol)
	if !testMetaData.LastRefreshed.Equal(res.LastRefreshed) {
		t.Fatalf("last refreshed time did not match, inserted %s, got back %s", ex.FmtShort(testMetaData.LastRefreshed), ex.FmtShort(res.LastRefreshed))
	}

	refreshed := time.Date(2025, time.November, 28, 0, 0, 0, 0, time.UTC)
	if err := pg.UpdateLastRefreshedDate(ctx, symbol, refreshed, nil); err != nil {
		t.Fatalf("error updating last refreshed date: %s", err)
	}

	res, err = pg.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting meta data by symbol after update, %s", err)
	}
	if !refreshed.Equal(res.LastRefreshed) {
		t.Fatalf("last refreshed time was not updated, expected %s, got %s", ex.FmtShort(refreshed), ex.FmtShort(res.LastRefreshed))
	}
}

func Test_PriceHistoryDataRepo_CanInsertAndGet(t *testing.T) {
	symbol := "_TEST2"

	testMetaData := m.PriceHistoryMetadata{
		Symbol:        symbol,
		LastRefreshed: time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC),
	}

	ctx := context.Background()
	pg := getConnection(t, ctx)

	if err := pg.InsertNewMetaData(ctx, &testMetaData, nil); err != nil {
		t.Fatalf("error inserting new meta data: %s", err)
	}

	t.Cleanup(func() { deleteTestSymbol(t, pg, testMetaData.Id) })

	none, err := pg.GetMostRecentTimestampForSymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting most recent timestamp for empty symbol: %s", err)
	}
	if none != nil {
		t.Fatalf("expected no most recent timestamp before inserting, got %s", ex.FmtShort(*none))
	}

	testData := []*m.PriceHistoryData{
		{
			Timestamp:     time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC),
			Close:         null.FloatFrom(254.63),
			AdjustedClose: null.FloatFrom(254.12),
		},
		{
			Timestamp: time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC),
			Close:     null.FloatFrom(270.37),
		},
	}

	ct, err := pg.InsertPriceHistoryData(ctx, testData, testMetaData.Id, nil)
	if err != nil {
		t.Fatalf("error inserting price history data: %s", err)
	}
	ex.AssertAreEqual(t, "inserted rows", int64(len(testData)), ct)

	ts, err := pg.GetPriceHistoryData(ctx, symbol, time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("error getting price history by symbol: %s", err)
	}
	ex.AssertAreEqual(t, "rows", 2, len(ts))

	// ascending order
	ex.AssertAreEqual(t, "first close", 254.63, ts[0].Close.Float64)
	ex.AssertAreEqual(t, "first adjusted close", 254.12, ts[0].AdjustedClose.Float64)
	ex.AssertAreEqual(t, "second close", 270.37, ts[1].Close.Float64)
	ex.AssertAreEqual(t, "second adjusted close valid", false, ts[1].AdjustedClose.Valid)

	recent, err := pg.GetMostRecentTimestampForSymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting most recent timestamp: %s", err)
	}
	if recent == nil || !recent.Equal(testData[1].Timestamp) {
		t.Fatalf("most recent timestamp mismatch, expected %s, got %v", ex.FmtShort(testData[1].Timestamp), recent)
	}
}

func Test_PriceHistoryDataRepo_DeleteInsideTransaction(t *testing.T) {
	symbol := "_TEST4"

	md := m.PriceHistoryMetadata{Symbol: symbol, LastRefreshed: time.Now().UTC()}

	ctx := context.Background()
	pg := getConnection(t, ctx)

	if err := pg.InsertNewMetaData(ctx, &md, nil); err != nil {
		t.Fatalf("error inserting new meta data: %s", err)
	}
	t.Cleanup(func() { deleteTestSymbol(t, pg, md.Id) })

	data := []*m.PriceHistoryData{
		{Timestamp: time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC), AdjustedClose: null.FloatFrom(100)},
		{Timestamp: time.Date(2025, time.October, 31, 0, 0, 0, 0, time.UTC), AdjustedClose: null.FloatFrom(102)},
	}
	if _, err := pg.InsertPriceHistoryData(ctx, data, md.Id, nil); err != nil {
		t.Fatalf("error inserting price history data: %s", err)
	}

	var deleted int64
	err := pg.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		deleted, err = pg.DeletePriceHistoryData(ctx, md.Id, tx)
		return err
	})
	if err != nil {
		t.Fatalf("error deleting price history data: %s", err)
	}
	ex.AssertAreEqual(t, "deleted rows", int64(2), deleted)

	res, err := pg.GetPriceHistoryData(ctx, symbol, time.Time{})
	if err != nil {
		t.Fatalf("error getting price history by symbol: %s", err)
	}
	ex.AssertAreEqual(t, "rows after delete", 0, len(res))
}

func Test_Base_WithTransactionRollsBackOnError(t *testing.T) {
	symbol := "_TEST3"

	ctx := context.Background()
	pg := getConnection(t, ctx)

	err := pg.WithTransaction(ctx, func(tx pgx.Tx) error {
		md := m.PriceHistoryMetadata{Symbol: symbol, LastRefreshed: time.Now().UTC()}
		if err := pg.InsertNewMetaData(ctx, &md, tx); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("expected the abort error back from the transaction, got %v", err)
	}

	res, err := pg.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting meta data by symbol: %s", err)
	}
	if res != nil {
		t.Cleanup(func() { deleteTestSymbol(t, pg, res.Id) })
		t.Fatalf("symbol %s should have been rolled back", symbol)
	}
}

func getConnection(t *testing.T, ctx context.Context) *Postgres {
	t.Helper()
	_ = godotenv.Load("../../.env")

	connectionString := os.Getenv("DATABASE_URL")
	if connectionString == "" {
		t.Skip("DATABASE_URL is not set, skipping postgres tests")
	}

	res, err := GetPostgresConnection(ctx, connectionString)
	if err != nil {
		t.Fatalf("error getting postgres connection: %s", err)
	}

	t.Cleanup(func() {
		res.Close()
	})

	if err := res.EnsureSchema(ctx); err != nil {
		t.Fatalf("error ensuring schema: %s", err)
	}

	return res
}

func deleteTestSymbol(t *testing.T, pg *Postgres, id int32) {
	t.Helper()
	ctx := context.Background()

	if _, err := pg.DeletePriceHistoryData(ctx, id, nil); err != nil {
		t.Errorf("cleanup of price history for source %d failed: %s", id, err)
	}
	if _, err := pg.db.Exec(ctx, q.Get(q.QueryHelper.Delete.MetadataById), pgx.NamedArgs{"source_id": id}); err != nil {
		t.Errorf("cleanup of metadata for source %d failed: %s", id, err)
	}
}
