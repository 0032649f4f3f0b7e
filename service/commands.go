package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	r "capm/data/repos"
	av "capm/service/api/alpha_vantage"
	"capm/service/catalog"
	"capm/service/config"
	c "capm/service/core"
	sm "capm/service/models"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	configPath string
	config     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "capm",
		Short:         "CAPM beta, alpha and risk adjusted return analysis",
		Long:          "Computes CAPM beta, Jensen's alpha, R², Sharpe and Treynor ratios and rolling regressions for equity tickers against a market index.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.config = cfg

			level, err := zerolog.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
			}
			zerolog.SetGlobalLevel(level)

			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a yaml config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the http api",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <ticker> [ticker...]",
		Short: "Analyze tickers against the market and print the metrics as json",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runAnalyze,
	}

	rollingCmd := &cobra.Command{
		Use:   "rolling <ticker>",
		Short: "Print rolling beta, alpha and R² for a ticker as json",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runRolling,
	}
	rollingCmd.Flags().Int("window", 0, "rolling window in periods (6-36), defaults to analysis.window")

	tickersCmd := &cobra.Command{
		Use:   "tickers",
		Short: "List the ticker catalog",
		Args:  cobra.NoArgs,
		RunE:  a.runTickers,
	}

	rootCmd.AddCommand(serveCmd, analyzeCmd, rollingCmd, tickersCmd)
	return rootCmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sc, cleanup, err := a.serviceContext(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// get http server, makes all of the endpoints and routes
	s := c.GetHttpServer(sc, a.config.Server.Addr)

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("starting capm server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	// wait here until the context is closed (ie, ctrl+C) or the listener fails
	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal, shutting down gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info().Msg("server stopped successfully")
	return nil
}

func (a *app) runAnalyze(cmd *cobra.Command, args []string) error {
	sc, cleanup, err := a.serviceContext(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tickers := catalog.Normalize(args)
	if len(tickers) == 0 {
		return fmt.Errorf("no tickers given")
	}

	run := sc.NewAnalysisRun()
	res := sm.BatchResponse{
		RunId:   run.Id.String(),
		Results: run.AnalyzeBatch(cmd.Context(), tickers),
	}

	return writeJSON(cmd.OutOrStdout(), res)
}

func (a *app) runRolling(cmd *cobra.Command, args []string) error {
	window, err := cmd.Flags().GetInt("window")
	if err != nil {
		return err
	}
	if window == 0 {
		window = a.config.Analysis.Window
	}

	sc, cleanup, err := a.serviceContext(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tickers := catalog.Normalize(args)
	if len(tickers) == 0 {
		return fmt.Errorf("no ticker given")
	}

	points, err := sc.NewAnalysisRun().RollingAnalyze(cmd.Context(), tickers[0], window)
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), sm.RollingResponse{
		Ticker: tickers[0],
		Window: window,
		Points: points,
	})
}

func (a *app) runTickers(cmd *cobra.Command, args []string) error {
	return writeJSON(cmd.OutOrStdout(), catalog.LoadFromFile(a.config.Catalog.Path))
}

// serviceContext wires the providers. With a database url prices go through the postgres cache,
// otherwise straight to alpha vantage.
func (a *app) serviceContext(ctx context.Context) (*c.ServiceContext, func(), error) {
	cfg := a.config
	cleanup := func() {}

	if cfg.AlphaVantage.ApiKey == "" {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY is not set, upstream requests will be rejected")
	}
	avClient := av.GetClientForHost(cfg.AlphaVantage.Host, cfg.AlphaVantage.ApiKey, cfg.ClientSettings())

	sc := &c.ServiceContext{
		Prices:   avClient,
		Yields:   avClient,
		Settings: cfg.AnalysisSettings(),
		Tickers:  catalog.LoadFromFile(cfg.Catalog.Path),
	}

	if cfg.Database.Url != "" {
		postgresConnection, err := r.GetPostgresConnection(ctx, cfg.Database.Url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgresConnection.EnsureSchema(ctx); err != nil {
			postgresConnection.Close()
			return nil, nil, err
		}

		sc.PostgresConnection = postgresConnection
		sc.Prices = c.NewCachedPriceProvider(postgresConnection, avClient, cfg.Database.RefreshAfter)
		cleanup = postgresConnection.Close
		log.Info().Dur("refreshAfter", cfg.Database.RefreshAfter).Msg("price history cache enabled")
	}

	return sc, cleanup, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
