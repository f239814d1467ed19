// Package watchlist manages the persisted set of tickers the user follows
// and keeps the price cache's tracked set in step with it.
package watchlist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/store"
)

// ErrEmptyTicker rejects blank input before it reaches storage.
var ErrEmptyTicker = errors.New("ticker is required")

// AlreadyWatchedError reports a duplicate add.
type AlreadyWatchedError struct {
	Ticker string
}

func (e *AlreadyWatchedError) Error() string {
	return fmt.Sprintf("%s already in watchlist", e.Ticker)
}

// NotWatchedError reports a remove of a ticker that was never added.
type NotWatchedError struct {
	Ticker string
}

func (e *NotWatchedError) Error() string {
	return fmt.Sprintf("%s not in watchlist", e.Ticker)
}

// Item is a watchlist entry decorated with the latest cached price, when one
// exists. Pointer fields are nil until the producer has published a price.
type Item struct {
	Ticker        string   `json:"ticker"`
	Price         *float64 `json:"price"`
	PreviousPrice *float64 `json:"previous_price"`
	ChangePercent *float64 `json:"change_percent"`
}

// Service coordinates the persisted watchlist with the cache's ticker
// registry: adds register the ticker for tracking, removes purge it.
type Service struct {
	store store.Store
	cache *market.Cache
	now   func() time.Time
}

func NewService(st store.Store, cache *market.Cache) *Service {
	return &Service{store: st, cache: cache, now: time.Now}
}

// Sync registers every persisted ticker with the cache. Called once at
// startup, before the producer starts, so polled feeds see the full set.
func (s *Service) Sync() error {
	tickers, err := s.store.Watchlist()
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	for _, t := range tickers {
		s.cache.AddTicker(t)
	}
	return nil
}

// Add persists a new ticker and starts tracking it.
func (s *Service) Add(ticker string) (Item, error) {
	ticker = normalize(ticker)
	if ticker == "" {
		return Item{}, ErrEmptyTicker
	}

	added, err := s.store.AddWatch(ticker, s.now().UTC())
	if err != nil {
		return Item{}, err
	}
	if !added {
		return Item{}, &AlreadyWatchedError{Ticker: ticker}
	}

	s.cache.AddTicker(ticker)
	return s.item(ticker), nil
}

// Remove drops a ticker from the watchlist and purges its cached price.
func (s *Service) Remove(ticker string) error {
	ticker = normalize(ticker)
	if ticker == "" {
		return ErrEmptyTicker
	}

	removed, err := s.store.RemoveWatch(ticker)
	if err != nil {
		return err
	}
	if !removed {
		return &NotWatchedError{Ticker: ticker}
	}

	s.cache.RemoveTicker(ticker)
	return nil
}

// List returns every watched ticker with its latest cached price.
func (s *Service) List() ([]Item, error) {
	tickers, err := s.store.Watchlist()
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(tickers))
	for _, t := range tickers {
		items = append(items, s.item(t))
	}
	return items, nil
}

func (s *Service) item(ticker string) Item {
	it := Item{Ticker: ticker}
	if e, ok := s.cache.Get(ticker); ok {
		price, prev, change := e.Price, e.PreviousPrice, e.ChangePercent()
		it.Price = &price
		it.PreviousPrice = &prev
		it.ChangePercent = &change
	}
	return it
}

func normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
