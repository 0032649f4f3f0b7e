package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	m "capm/data/models"
	"capm/service/catalog"
	sm "capm/service/models"
)

const (
	DefaultAddr = ":8080"
)

func GetHttpServer(sc *ServiceContext, addr string) *http.Server {
	if addr == "" {
		addr = DefaultAddr
	}

	return &http.Server{
		Addr:           addr,
		Handler:        GetRouter(sc),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   2 * time.Minute, // a cold batch waits on the rate limited upstream
		MaxHeaderBytes: 1 << 20,
	}
}

func GetRouter(sc *ServiceContext) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) { ping(w, r, sc) })
	router.Get("/api/tickers", func(w http.ResponseWriter, r *http.Request) { tickers(w, r, sc) })
	router.Get("/api/analyze", func(w http.ResponseWriter, r *http.Request) { analyze(w, r, sc) })
	router.Get("/api/rolling/{ticker}", func(w http.ResponseWriter, r *http.Request) { rolling(w, r, sc) })
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func ping(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	if sc.PostgresConnection != nil {
		if err := sc.PostgresConnection.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("error pinging postgres")
			writeJSON(w, http.StatusServiceUnavailable, sm.GetServiceResponseError("database unavailable"))
			return
		}
	}

	message := "pong"
	writeJSON(w, http.StatusOK, sm.GetServiceResponseOk(&message))
}

func tickers(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	res := sc.Tickers
	if len(res) == 0 {
		res = catalog.Default()
	}
	writeJSON(w, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func analyze(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	requested := catalog.Normalize(strings.Split(r.URL.Query().Get("tickers"), ","))
	if len(requested) == 0 {
		writeJSON(w, http.StatusBadRequest, sm.GetServiceResponseError("no tickers selected, pass ?tickers=AAPL,MSFT"))
		return
	}

	run := sc.NewAnalysisRun()
	res := sm.BatchResponse{
		RunId:   run.Id.String(),
		Results: run.AnalyzeBatch(r.Context(), requested),
	}

	writeJSON(w, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func rolling(w http.ResponseWriter, r *http.Request, sc *ServiceContext) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))

	window := sc.Settings.Window
	if window == 0 {
		window = DefaultRollingWindow
	}
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, sm.GetServiceResponseError("window must be an integer"))
			return
		}
		window = parsed
	}

	points, err := sc.NewAnalysisRun().RollingAnalyze(r.Context(), ticker, window)
	if err != nil {
		writeJSON(w, StatusForError(err), sm.GetServiceResponseError(err.Error()))
		return
	}

	res := sm.RollingResponse{
		Ticker: ticker,
		Window: window,
		Points: points,
	}
	writeJSON(w, http.StatusOK, sm.GetServiceResponseOk(&res))
}

// StatusForError maps the error taxonomy onto http status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, m.ErrInvalidWindow),
		errors.Is(err, m.ErrInsufficientData),
		errors.Is(err, m.ErrAlignmentEmpty),
		errors.Is(err, m.ErrDegenerateRegression):
		return http.StatusUnprocessableEntity
	case errors.Is(err, m.ErrDataUnavailable):
		return http.StatusNotFound
	case errors.Is(err, m.ErrRateLimited),
		errors.Is(err, m.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes before the header goes out so an unencodable body becomes a 500
func writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		log.Error().Err(err).Msg("error encoding response")
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(sm.GetServiceResponseError("error encoding response"))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("error writing response")
	}
}
