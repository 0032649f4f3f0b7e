package alpha_vantage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex "capm/data/extensions"
	m "capm/data/models"
	c "capm/service/api"
)

const monthlyAdjustedBody = `{
	"Meta Data": {
		"1. Information": "Monthly Adjusted Prices and Volumes",
		"2. Symbol": "AAPL",
		"3. Last Refreshed": "2024-03-28",
		"4. Time Zone": "US/Eastern"
	},
	"Monthly Adjusted Time Series": {
		"2024-03-28": {"1. open": "179.55", "2. high": "180.53", "3. low": "168.49", "4. close": "171.48", "5. adjusted close": "171.24", "6. volume": "1432782912", "7. dividend amount": "0.0000"},
		"2024-02-29": {"1. open": "183.99", "2. high": "191.05", "3. low": "179.25", "4. close": "180.75", "5. adjusted close": "180.50", "6. volume": "1161627000", "7. dividend amount": "0.2400"},
		"2024-01-31": {"1. open": "187.15", "2. high": "196.38", "3. low": "180.17", "4. close": "184.40", "5. adjusted close": "183.90", "6. volume": "1187490000", "7. dividend amount": "0.0000"}
	}
}`

const treasuryYieldBody = `{
	"name": "Monthly Treasury Yield",
	"interval": "monthly",
	"unit": "percent",
	"data": [
		{"date": "2024-03-01", "value": "4.34"},
		{"date": "2024-02-01", "value": "."},
		{"date": "2024-01-01", "value": "4.26"}
	]
}`

type fakeConnection struct {
	body     string
	status   int
	err      error
	requests []*url.URL
}

func (f *fakeConnection) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	f.requests = append(f.requests, endpoint)
	if f.err != nil {
		return nil, f.err
	}

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func fakeClient(conn *fakeConnection) *AlphaVantageClient {
	return &AlphaVantageClient{&c.Client{Connection: conn, ApiKey: "av-test-api-key"}}
}

func Test_DoesNullFloatWorkHowIThink(t *testing.T) {
	var nullFloat null.Float
	assert.False(t, nullFloat.Valid)

	assert.False(t, parseFloat(".").Valid)
	assert.False(t, parseFloat("").Valid)
	assert.False(t, parseFloat("abc").Valid)

	valid := parseFloat("4.65")
	require.True(t, valid.Valid)
	ex.AssertAreEqual(t, "value", 4.65, valid.Float64)
}

func Test_AlphaVantage_StockTimeSeries(t *testing.T) {
	conn := &fakeConnection{body: monthlyAdjustedBody}
	client := fakeClient(conn)

	res, err := client.StockTimeSeries(context.Background(), TimeSeriesMonthlyAdjusted, "AAPL")
	require.NoError(t, err)

	location, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// meta data
	ex.AssertAreEqual(t, "symbol", "AAPL", res.Metadata.Symbol)
	ex.AssertAreEqual(t, "time zone", "US/Eastern", res.Metadata.TimeZone.String)
	ex.AssertAreEqual(t, "information", "Monthly Adjusted Prices and Volumes", res.Metadata.Information.String)
	assert.True(t, res.Metadata.LastRefreshed.Equal(time.Date(2024, 3, 28, 0, 0, 0, 0, location)))

	// time series
	require.Len(t, res.TimeSeries, 3)
	for _, d := range res.TimeSeries {
		assert.True(t, d.Close.Valid)
		assert.True(t, d.AdjustedClose.Valid)
		if d.Timestamp.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, location)) {
			ex.AssertAreEqual(t, "close", 180.75, d.Close.Float64)
			ex.AssertAreEqual(t, "adjusted close", 180.50, d.AdjustedClose.Float64)
		}
	}

	// request parameters
	require.Len(t, conn.requests, 1)
	q := conn.requests[0].Query()
	ex.AssertAreEqual(t, "function", "TIME_SERIES_MONTHLY_ADJUSTED", q.Get("function"))
	ex.AssertAreEqual(t, "symbol", "AAPL", q.Get("symbol"))
	ex.AssertAreEqual(t, "apikey", "av-test-api-key", q.Get("apikey"))
	ex.AssertAreEqual(t, "outputsize", "full", q.Get("outputsize"))
}

func Test_AlphaVantage_FetchPrices_NormalizesToMonthEnd(t *testing.T) {
	client := fakeClient(&fakeConnection{body: monthlyAdjustedBody})

	prices, err := client.FetchPrices(context.Background(), "AAPL", time.Since(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)), m.IntervalMonthly)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	expected := []time.Time{
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	for i, p := range prices {
		assert.True(t, expected[i].Equal(p.Timestamp), "index %d: expected %s, got %s", i, expected[i], p.Timestamp)
	}

	// adjusted close wins over raw close
	ex.AssertAreEqual(t, "first close", 183.90, prices[0].Close)
}

func Test_AlphaVantage_FetchPrices_LookbackExcludesEverything(t *testing.T) {
	client := fakeClient(&fakeConnection{body: monthlyAdjustedBody})

	_, err := client.FetchPrices(context.Background(), "AAPL", time.Hour, m.IntervalMonthly)
	assert.ErrorIs(t, err, m.ErrDataUnavailable)
}

func Test_AlphaVantage_FetchYields(t *testing.T) {
	conn := &fakeConnection{body: treasuryYieldBody}
	client := fakeClient(conn)

	yields, err := client.FetchYields(context.Background(), "30year", time.Since(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)), m.IntervalMonthly)
	require.NoError(t, err)

	// the "." observation is skipped
	require.Len(t, yields, 2)
	assert.True(t, yields[0].Timestamp.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	ex.AssertAreEqual(t, "first yield", 4.26, yields[0].Yield)
	assert.True(t, yields[1].Timestamp.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)))

	q := conn.requests[0].Query()
	ex.AssertAreEqual(t, "function", "TREASURY_YIELD", q.Get("function"))
	ex.AssertAreEqual(t, "maturity", "30year", q.Get("maturity"))
	ex.AssertAreEqual(t, "interval", "monthly", q.Get("interval"))
}

func Test_AlphaVantage_ErrorPayloads(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected error
	}{
		{"invalid symbol", `{"Error Message": "Invalid API call."}`, m.ErrDataUnavailable},
		{"note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, m.ErrRateLimited},
		{"information", `{"Information": "We have detected your API key and our standard API rate limit is 25 requests per day."}`, m.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fakeClient(&fakeConnection{body: tt.body})
			_, err := client.StockTimeSeries(context.Background(), TimeSeriesMonthly, "NOPE")
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func Test_AlphaVantage_TransportErrorIsUnavailable(t *testing.T) {
	client := fakeClient(&fakeConnection{err: errors.New("connection refused")})

	_, err := client.TreasuryYield(context.Background(), "30year", m.IntervalMonthly)
	assert.ErrorIs(t, err, m.ErrDataUnavailable)
}

func Test_AlphaVantage_UpstreamOutageIsNotMissingData(t *testing.T) {
	outage := fmt.Errorf("%w: www.alphavantage.co circuit is open", m.ErrUpstreamUnavailable)
	client := fakeClient(&fakeConnection{err: outage})

	_, err := client.StockTimeSeries(context.Background(), TimeSeriesMonthlyAdjusted, "AAPL")
	assert.ErrorIs(t, err, m.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, m.ErrDataUnavailable)
}

func Test_PricePoints_SkipsNegativeCloses(t *testing.T) {
	data := []*m.PriceHistoryData{
		{Timestamp: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), AdjustedClose: null.FloatFrom(10)},
		{Timestamp: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), AdjustedClose: null.FloatFrom(-3)},
		{Timestamp: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Close: null.FloatFrom(0)},
	}

	prices, err := PricePoints(data, time.Time{}, m.IntervalMonthly, "TEST")
	require.NoError(t, err)

	require.Len(t, prices, 2)
	ex.AssertAreEqual(t, "first close", 10.0, prices[0].Close)
	ex.AssertAreEqual(t, "zero close is kept", 0.0, prices[1].Close)
}

func Test_AlphaVantage_MissingSeriesBlock(t *testing.T) {
	body := `{"Meta Data": {"2. Symbol": "AAPL", "3. Last Refreshed": "2024-03-28", "4. Time Zone": "US/Eastern"}}`
	client := fakeClient(&fakeConnection{body: body})

	_, err := client.StockTimeSeries(context.Background(), TimeSeriesMonthlyAdjusted, "AAPL")
	assert.ErrorIs(t, err, m.ErrDataUnavailable)
}

func Test_PricePoints_LaterRawPointWinsWithinPeriod(t *testing.T) {
	data := []*m.PriceHistoryData{
		{Timestamp: time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), Close: null.FloatFrom(10)},
		{Timestamp: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Close: null.FloatFrom(11)},
		{Timestamp: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	prices, err := PricePoints(data, time.Time{}, m.IntervalMonthly, "TEST")
	require.NoError(t, err)

	// february has neither close so it drops out
	require.Len(t, prices, 1)
	ex.AssertAreEqual(t, "close", 11.0, prices[0].Close)
}

func Test_AlphaVantage_NonOkStatus(t *testing.T) {
	client := fakeClient(&fakeConnection{body: `{}`, status: http.StatusForbidden})

	_, err := client.StockTimeSeries(context.Background(), TimeSeriesMonthlyAdjusted, "AAPL")
	assert.ErrorIs(t, err, m.ErrDataUnavailable)
}
