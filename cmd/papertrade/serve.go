package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/api"
	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/feed"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/portfolio"
	"github.com/rustyeddy/papertrade/sim"
	"github.com/rustyeddy/papertrade/store"
	"github.com/rustyeddy/papertrade/stream"
	"github.com/rustyeddy/papertrade/watchlist"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		level      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the market producer, trading API, and websocket stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(level)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if configPath != "" {
				cfg, err = config.LoadFromFile(configPath)
				if err != nil {
					return err
				}
				log.Info().Str("path", configPath).Msg("loaded config")
			} else if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or JSON)")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level: trace, debug, info, warn, error")
	return cmd
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLite(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Init(cfg.Account.SeedCash, cfg.DefaultTickers()); err != nil {
		return err
	}

	cache := market.NewCache()

	watch := watchlist.NewService(st, cache)
	if err := watch.Sync(); err != nil {
		return err
	}

	provider, err := newProvider(cfg, cache, log)
	if err != nil {
		return err
	}
	if err := provider.Start(); err != nil {
		return err
	}
	defer provider.Stop()

	acct := portfolio.NewAccountant(st, cache, portfolio.SellPolicy(cfg.Trading.SellPolicy), log)

	snapInterval, _ := cfg.SnapshotInterval()
	recorder := portfolio.NewSnapshotRecorder(acct, snapInterval, log)
	if err := recorder.Start(); err != nil {
		return err
	}
	defer recorder.Stop()

	streamInterval, _ := cfg.StreamInterval()
	hub := stream.NewHub(cache, streamInterval, log)
	if err := hub.Start(); err != nil {
		return err
	}
	defer hub.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(acct, watch, cache, hub, log).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("provider", cfg.Market.Provider).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newProvider builds the configured price producer. Exactly one producer
// runs per process.
func newProvider(cfg *config.Config, cache *market.Cache, log zerolog.Logger) (market.Provider, error) {
	switch cfg.Market.Provider {
	case "poll":
		interval, _ := cfg.PollInterval()
		timeout, _ := cfg.PollRequestTimeout()
		return feed.New(cache, feed.Config{
			BaseURL:        cfg.Feed.BaseURL,
			APIKey:         cfg.FeedAPIKey(),
			Interval:       interval,
			RequestTimeout: timeout,
		}, log)
	default:
		tickers := make(map[string]sim.TickerParams, len(cfg.Simulator.Tickers))
		for _, t := range cfg.Simulator.Tickers {
			tickers[t.Ticker] = sim.TickerParams{
				Seed:    t.Seed,
				Drift:   t.Drift,
				Vol:     t.Vol,
				Cluster: t.Cluster,
			}
		}
		interval, _ := cfg.TickInterval()
		return sim.New(cache, sim.Config{
			Tickers:      tickers,
			Interval:     interval,
			IntraCluster: cfg.Simulator.Clusters,
			CrossCluster: cfg.Simulator.CrossCorrelation,
			EventProb:    cfg.Simulator.EventProbability,
			EventMinPct:  cfg.Simulator.EventMinPct,
			EventMaxPct:  cfg.Simulator.EventMaxPct,
			Floor:        cfg.Simulator.Floor,
		}, log)
	}
}
