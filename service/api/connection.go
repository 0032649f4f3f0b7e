package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	m "capm/data/models"
)

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

// ClientSettings controls the transport, request pacing and breaker for a host
type ClientSettings struct {
	Timeout           time.Duration
	RequestsPerMinute float64
	Burst             int

	BreakerFailures uint32        // consecutive failures before the breaker opens
	BreakerTimeout  time.Duration // how long the breaker stays open before probing
}

type ClientHost struct {
	client  *http.Client
	host    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type Client struct {
	Connection Connection
	ApiKey     string
}

func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	if err := conn.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting on rate limiter for %s: %w", conn.host, err)
	}

	endpoint.Scheme = "https"
	endpoint.Host = conn.host
	targetUrl := endpoint.String()

	res, err := conn.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetUrl, nil)
		if err != nil {
			return nil, err
		}

		resp, err := conn.client.Do(req)
		if err != nil {
			return nil, err
		}

		// only server side failures count against the breaker
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s returned %d", m.ErrUpstreamUnavailable, conn.host, resp.StatusCode)
		}

		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s circuit is %s", m.ErrUpstreamUnavailable, conn.host, conn.breaker.State())
	}
	if err != nil {
		return nil, err
	}

	return res.(*http.Response), nil
}

func ClientFactory(host string, apiKey string, settings ClientSettings) *Client {
	client := &http.Client{
		Timeout: settings.Timeout,
	}

	limit := rate.Inf
	if settings.RequestsPerMinute > 0 {
		limit = rate.Limit(settings.RequestsPerMinute / 60)
	}

	burst := settings.Burst
	if burst < 1 {
		burst = 1
	}

	failures := settings.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: settings.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker changed state")
		},
	})

	clientHost := &ClientHost{
		client:  client,
		host:    host,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}

	return &Client{
		Connection: clientHost,
		ApiKey:     apiKey,
	}
}
