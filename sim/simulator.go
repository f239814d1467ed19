// Package sim generates correlated price paths for a basket of tickers and
// publishes them into the shared price cache. The model is discretized
// geometric Brownian motion with sector-correlated shocks and occasional
// discontinuous event jumps.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/metrics"
)

const (
	tradingDaysPerYear = 252
	tradingHoursPerDay = 6.5
)

// TickerParams are the static per-ticker model parameters.
type TickerParams struct {
	Seed    float64 // initial price, must be > 0
	Drift   float64 // annualized drift
	Vol     float64 // annualized volatility, must be > 0
	Cluster string  // correlation cluster; "" means uncorrelated tier
}

// Config drives simulator construction. All fields are required except
// RandSeed, which defaults to a time-based seed when zero.
type Config struct {
	Tickers      map[string]TickerParams
	Interval     time.Duration      // wall-clock tick interval
	IntraCluster map[string]float64 // same-cluster correlation per cluster
	CrossCluster float64            // everything-else correlation
	EventProb    float64            // per ticker, per tick
	EventMinPct  float64            // jump magnitude lower bound (fraction)
	EventMaxPct  float64            // jump magnitude upper bound (fraction)
	Floor        float64            // minimum publishable price, must be > 0
	RandSeed     int64
}

// Simulator advances every ticker once per tick and publishes into the
// cache. It implements market.Provider.
type Simulator struct {
	cache  *market.Cache
	log    zerolog.Logger
	cfg    Config
	dt     float64
	sqrtDt float64

	tickers []string // fixed order, matches the factor's rows
	prices  map[string]float64
	factor  *mat.TriDense
	rng     *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the configuration, builds the correlation model, and fails
// fast when the matrix does not factorize. No work happens until Start.
func New(cache *market.Cache, cfg Config, log zerolog.Logger) (*Simulator, error) {
	if len(cfg.Tickers) == 0 {
		return nil, errors.New("simulator: no tickers configured")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("simulator: tick interval must be positive")
	}
	if cfg.Floor <= 0 {
		return nil, errors.New("simulator: price floor must be positive")
	}
	if cfg.EventMinPct < 0 || cfg.EventMaxPct < cfg.EventMinPct {
		return nil, errors.New("simulator: event jump range is invalid")
	}

	tickers := make([]string, 0, len(cfg.Tickers))
	clusters := make(map[string]string, len(cfg.Tickers))
	prices := make(map[string]float64, len(cfg.Tickers))
	for ticker, p := range cfg.Tickers {
		if p.Seed <= 0 {
			return nil, fmt.Errorf("simulator: %s seed price must be positive", ticker)
		}
		if p.Vol <= 0 {
			return nil, fmt.Errorf("simulator: %s volatility must be positive", ticker)
		}
		tickers = append(tickers, ticker)
		clusters[ticker] = p.Cluster
		prices[ticker] = p.Seed
	}
	sort.Strings(tickers)

	corr := correlationMatrix(tickers, clusters, cfg.IntraCluster, cfg.CrossCluster)
	factor, err := choleskyFactor(corr)
	if err != nil {
		return nil, err
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	dt := cfg.Interval.Seconds() / (tradingDaysPerYear * tradingHoursPerDay * 3600)

	return &Simulator{
		cache:   cache,
		log:     log,
		cfg:     cfg,
		dt:      dt,
		sqrtDt:  math.Sqrt(dt),
		tickers: tickers,
		prices:  prices,
		factor:  factor,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Start seeds the cache with every ticker's seed price and launches the tick
// loop. Calling Start on a running simulator is an error.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("simulator: already started")
	}

	s.cache.UpdateBatch(s.prices)
	metrics.PriceUpdatesTotal.WithLabelValues("sim").Add(float64(len(s.prices)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(ctx, done)

	s.log.Info().Int("tickers", len(s.tickers)).Dur("interval", s.cfg.Interval).Msg("simulator started")
	return nil
}

// Stop halts the loop and waits for it to exit. The cache keeps its last
// published values. Stop on a stopped simulator is a no-op.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.log.Info().Msg("simulator stopped")
	return nil
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.step()
		}
	}
}

// step advances every price by one GBM increment with correlated shocks,
// layers on any event jumps, floors the result, and publishes the whole
// tick as one batch so readers never observe a partially advanced basket.
// Pure computation: only the run goroutine calls it.
func (s *Simulator) step() {
	z := make([]float64, len(s.tickers))
	for i := range z {
		z[i] = s.rng.NormFloat64()
	}
	shocks := correlate(s.factor, z)

	for i, ticker := range s.tickers {
		p := s.cfg.Tickers[ticker]
		old := s.prices[ticker]

		// dS = S * (mu*dt + sigma*sqrt(dt)*Z)
		next := old + old*(p.Drift*s.dt+p.Vol*s.sqrtDt*shocks[i])

		if s.rng.Float64() < s.cfg.EventProb {
			pct := s.cfg.EventMinPct + s.rng.Float64()*(s.cfg.EventMaxPct-s.cfg.EventMinPct)
			if s.rng.Intn(2) == 0 {
				pct = -pct
			}
			next *= 1 + pct
			s.log.Debug().Str("ticker", ticker).Float64("pct", pct*100).Msg("event jump")
		}

		if next < s.cfg.Floor {
			next = s.cfg.Floor
		}

		s.prices[ticker] = next
	}

	s.cache.UpdateBatch(s.prices)
	metrics.PriceUpdatesTotal.WithLabelValues("sim").Add(float64(len(s.prices)))
}
