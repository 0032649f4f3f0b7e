package alpha_vantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"

	e "capm/data/extensions"
	m "capm/data/models"
	c "capm/service/api"
)

// public
const (
	HostDefault = "www.alphavantage.co"
)

// private
const (
	// default query parameters
	defaultOutputSize = "full"
	defaultDataType   = "json"

	// api request elements
	query    = "query"
	symbol   = "symbol"
	function = "function"
	interval = "interval"
	maturity = "maturity"

	treasuryYield = "TREASURY_YIELD"
	missingValue  = "."
)

var (
	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}

	// av reports failures with a 200 and one of these keys
	errorMessageKey = "Error Message"
	rateLimitKeys   = []string{"Note", "Information"}
)

type AlphaVantageClient struct {
	*c.Client
}

func GetClientForHost(host, apiKey string, settings c.ClientSettings) *AlphaVantageClient {
	return &AlphaVantageClient{
		c.ClientFactory(host, apiKey, settings),
	}
}

// https://www.alphavantage.co/documentation/#monthlyadj
func (avc *AlphaVantageClient) StockTimeSeries(ctx context.Context, timeSeries TimeSeries, ticker string) (*m.PriceHistoryResult, error) {
	raw, err := avc.request(ctx, map[string]string{
		function: timeSeries.Function(),
		symbol:   ticker,
	})
	if err != nil {
		return nil, fmt.Errorf("error requesting %s for %s: %w", timeSeries.Function(), ticker, err)
	}

	metaData, timeZone, err := parseMetaData(raw)
	if err != nil {
		return nil, err
	}

	timeSeriesData, err := parseTimeSeriesDataResult(raw, timeSeries.TimeSeriesKey(), timeZone)
	if err != nil {
		return nil, err
	}

	return &m.PriceHistoryResult{
		Metadata:   metaData,
		TimeSeries: timeSeriesData,
	}, nil
}

// https://www.alphavantage.co/documentation/#treasury-yield
func (avc *AlphaVantageClient) TreasuryYield(ctx context.Context, bondMaturity string, sampling m.Interval) (*m.TreasuryYieldResult, error) {
	raw, err := avc.request(ctx, map[string]string{
		function: treasuryYield,
		interval: sampling.Name(),
		maturity: bondMaturity,
	})
	if err != nil {
		return nil, fmt.Errorf("error requesting %s %s: %w", treasuryYield, bondMaturity, err)
	}

	return parseTreasuryYieldResult(raw)
}

// FetchPrices returns the ascending closes for the lookback window, keyed on the period end
func (avc *AlphaVantageClient) FetchPrices(ctx context.Context, ticker string, lookback time.Duration, sampling m.Interval) ([]m.PricePoint, error) {
	res, err := avc.StockTimeSeries(ctx, TimeSeriesFor(sampling), ticker)
	if err != nil {
		return nil, err
	}

	return PricePoints(res.TimeSeries, time.Now().Add(-lookback), sampling, ticker)
}

// FetchYields returns the ascending annualized yields (percent) for the lookback window
func (avc *AlphaVantageClient) FetchYields(ctx context.Context, bondMaturity string, lookback time.Duration, sampling m.Interval) ([]m.YieldPoint, error) {
	res, err := avc.TreasuryYield(ctx, bondMaturity, sampling)
	if err != nil {
		return nil, err
	}

	return YieldPoints(res.Data, time.Now().Add(-lookback), sampling, bondMaturity)
}

// PricePoints filters to points at or after since, normalizes timestamps to the period key and
// sorts ascending. When two raw points share a key the later one wins.
func PricePoints(data []*m.PriceHistoryData, since time.Time, sampling m.Interval, ticker string) ([]m.PricePoint, error) {
	byKey := make(map[time.Time]m.PricePoint, len(data))
	latest := make(map[time.Time]time.Time, len(data))

	for _, d := range data {
		if d.Timestamp.Before(since) {
			continue
		}

		p, ok := d.PricePoint()
		if !ok || p.Close < 0 {
			continue
		}

		key := m.PeriodKey(d.Timestamp, sampling)
		if prev, seen := latest[key]; seen && prev.After(d.Timestamp) {
			continue
		}

		latest[key] = d.Timestamp
		byKey[key] = m.PricePoint{Timestamp: key, Close: p.Close}
	}

	if len(byKey) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s since %s", m.ErrDataUnavailable, ticker, e.FmtShort(since))
	}

	res := slices.Collect(maps.Values(byKey))
	slices.SortFunc(res, func(a, b m.PricePoint) int { return a.Timestamp.Compare(b.Timestamp) })

	return res, nil
}

func YieldPoints(data []m.YieldPoint, since time.Time, sampling m.Interval, bondMaturity string) ([]m.YieldPoint, error) {
	byKey := make(map[time.Time]m.YieldPoint, len(data))
	for _, d := range data {
		if d.Timestamp.Before(since) {
			continue
		}
		key := m.PeriodKey(d.Timestamp, sampling)
		byKey[key] = m.YieldPoint{Timestamp: key, Yield: d.Yield}
	}

	if len(byKey) == 0 {
		return nil, fmt.Errorf("%w: no %s treasury yields since %s", m.ErrDataUnavailable, bondMaturity, e.FmtShort(since))
	}

	res := slices.Collect(maps.Values(byKey))
	slices.SortFunc(res, func(a, b m.YieldPoint) int { return a.Timestamp.Compare(b.Timestamp) })

	return res, nil
}

func (avc *AlphaVantageClient) request(ctx context.Context, params map[string]string) (map[string]json.RawMessage, error) {
	if avc == nil || avc.Client == nil {
		panic("alpha vantage client has not been set.")
	}

	endpoint := avc.buildRequestPath(params)

	response, err := avc.Client.Connection.Request(ctx, endpoint)
	if errors.Is(err, m.ErrUpstreamUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", m.ErrDataUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", m.ErrDataUnavailable, endpoint.Path, response.StatusCode)
	}

	raw, err := parseRawJson(response.Body)
	if err != nil {
		return nil, err
	}

	if err := checkErrorPayload(raw); err != nil {
		return nil, err
	}

	return raw, nil
}

func (avc *AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	// build our URL
	endpoint := &url.URL{}
	endpoint.Path = query

	// base parameters
	query := endpoint.Query()
	query.Set("apikey", avc.Client.ApiKey)
	query.Set("datatype", defaultDataType)
	query.Set("outputsize", defaultOutputSize)

	// additional parameters
	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(reader io.Reader) (raw map[string]json.RawMessage, err error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	// converting to a <string, raw message> map
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return
}

func checkErrorPayload(raw map[string]json.RawMessage) error {
	if msg, ok := raw[errorMessageKey]; ok {
		return fmt.Errorf("%w: %s", m.ErrDataUnavailable, unquote(msg))
	}

	// a note or information block without any data is av telling us to slow down
	if len(raw) == 1 {
		for _, key := range rateLimitKeys {
			if msg, ok := raw[key]; ok {
				return fmt.Errorf("%w: %s", m.ErrRateLimited, unquote(msg))
			}
		}
	}

	return nil
}

func parseMetaData(raw map[string]json.RawMessage) (*m.PriceHistoryMetadata, *time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw["Meta Data"], &metadataElements); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	metaDataKeys := slices.Collect(maps.Keys(metadataElements))
	findKey := func(suffix string) (string, error) {
		return e.FilterSingle(metaDataKeys, func(s string) bool { return strings.HasSuffix(s, suffix) })
	}

	symbolKey, err := findKey(". Symbol")
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting symbol for meta data")
	}

	timeZoneKey, err := findKey(". Time Zone")
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting time zone for meta data")
	}

	timeZone, err := getTimeZone(metadataElements[timeZoneKey])
	if err != nil {
		return nil, nil, fmt.Errorf("error converting time zone key %s, to time.Location: %w", metadataElements[timeZoneKey], err)
	}

	lastRefreshedKey, err := findKey(". Last Refreshed")
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting last refreshed date")
	}

	lastRefreshed, err := parseDate(metadataElements[lastRefreshedKey], timeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing last refreshed date")
	}

	res := m.PriceHistoryMetadata{
		Symbol:        metadataElements[symbolKey],
		LastRefreshed: lastRefreshed,
		TimeZone:      null.StringFrom(metadataElements[timeZoneKey]),
	}

	if informationKey, err := findKey(". Information"); err == nil {
		res.Information = null.StringFrom(metadataElements[informationKey])
	}

	return &res, timeZone, nil
}

func parseTimeSeriesDataResult(raw map[string]json.RawMessage, key string, location *time.Location) ([]*m.PriceHistoryData, error) {
	body, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("%w: response has no %q block", m.ErrDataUnavailable, key)
	}

	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(body, &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series: %w", err)
	}

	timeSeries := make([]*m.PriceHistoryData, 0, len(timeSeriesElements))
	if len(timeSeriesElements) == 0 {
		return timeSeries, nil
	}

	// the headers are the same for every element, resolve them once
	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}
	headers := slices.Collect(maps.Keys(firstValue))

	closeKey, err := e.FilterSingle(headers, func(s string) bool { return strings.HasSuffix(strings.ToLower(s), ". close") })
	if err != nil {
		return nil, fmt.Errorf("error extracting close key for time series. Available headers: %v", headers)
	}

	// only present on the adjusted endpoints
	adjustedCloseKey, _ := e.FilterSingle(headers, func(s string) bool { return strings.HasSuffix(strings.ToLower(s), ". adjusted close") })

	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		data := &m.PriceHistoryData{
			Timestamp: timestamp,
			Close:     parseFloat(timeSeriesValue[closeKey]),
		}
		if adjustedCloseKey != "" {
			data.AdjustedClose = parseFloat(timeSeriesValue[adjustedCloseKey])
		}

		timeSeries = append(timeSeries, data)
	}

	return timeSeries, nil
}

func parseTreasuryYieldResult(raw map[string]json.RawMessage) (*m.TreasuryYieldResult, error) {
	var header struct {
		Name     string `json:"name"`
		Interval string `json:"interval"`
		Unit     string `json:"unit"`
		Data     []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"data"`
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("error re-encoding treasury yield response: %w", err)
	}
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, fmt.Errorf("error unmarshaling treasury yield: %w", err)
	}

	res := &m.TreasuryYieldResult{
		Name:     header.Name,
		Interval: header.Interval,
		Unit:     header.Unit,
		Data:     make([]m.YieldPoint, 0, len(header.Data)),
	}

	skipped := 0
	for _, d := range header.Data {
		value := parseFloat(d.Value)
		if !value.Valid {
			skipped++
			continue
		}

		timestamp, err := parseDate(d.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("error converting treasury date: %w", err)
		}

		res.Data = append(res.Data, m.YieldPoint{Timestamp: timestamp, Yield: value.Float64})
	}

	if skipped > 0 {
		log.Debug().Str("series", header.Name).Int("skipped", skipped).Msg("skipped missing treasury observations")
	}

	return res, nil
}

func getTimeZone(location string) (*time.Location, error) {
	var loc string
	switch strings.ToUpper(location) {
	case "US/EASTERN":
		loc = "America/New_York"
	default:
		log.Debug().Str("timezone", location).Msg("default time zone hit, not recognized")
		return time.UTC, nil
	}

	res, err := time.LoadLocation(loc)
	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", loc)
	}

	return res, nil
}

func parseDate(dateString string, location *time.Location) (time.Time, error) {
	for _, format := range timeSeriesDateFormats {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}

func parseFloat(val string) null.Float {
	if val != "" && val != missingValue {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return null.FloatFrom(f)
		}
	}
	return null.Float{}
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
