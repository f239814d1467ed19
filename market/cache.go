package market

import (
	"sort"
	"sync"
	"time"
)

// Cache is the shared store of the latest price per ticker. One producer
// writes into it, everything else (trade pricing, valuation, streaming,
// watchlist views) reads. All methods are safe for concurrent use.
//
// Consumers that want to react to fresh prices use WaitForUpdate or Updated
// rather than polling Get in a tight loop. Notification is broadcast: a
// single channel is closed and replaced under the lock on every update, so a
// waiter that grabbed the channel before an update still observes it. There
// is no per-ticker signaling and no lost-wakeup window.
//
// Producers that advance every ticker together publish through UpdateBatch,
// which applies the whole batch under one lock acquisition so All never
// returns a mix of old and new tick values.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	tickers map[string]struct{}
	updated chan struct{}

	now func() time.Time // test hook
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		tickers: make(map[string]struct{}),
		updated: make(chan struct{}),
		now:     time.Now,
	}
}

// Update records a new observation for ticker and returns the stored entry.
// The previous price is the prior stored price, or the incoming price itself
// when the ticker has not been seen before.
func (c *Cache) Update(ticker string, price float64) Entry {
	c.mu.Lock()
	e := c.storeLocked(ticker, price, c.now().UTC())
	ch := c.updated
	c.updated = make(chan struct{})
	c.mu.Unlock()

	close(ch)
	return e
}

// UpdateBatch records one observation per ticker under a single lock
// acquisition, so a concurrent All sees either the whole batch or none of
// it. Every entry in the batch shares one timestamp, and waiters are
// notified once. An empty batch is a no-op.
func (c *Cache) UpdateBatch(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}

	c.mu.Lock()
	now := c.now().UTC()
	for ticker, price := range prices {
		c.storeLocked(ticker, price, now)
	}
	ch := c.updated
	c.updated = make(chan struct{})
	c.mu.Unlock()

	close(ch)
}

func (c *Cache) storeLocked(ticker string, price float64, at time.Time) Entry {
	previous := price
	if old, ok := c.entries[ticker]; ok {
		previous = old.Price
	}

	dir := Flat
	switch {
	case price > previous:
		dir = Up
	case price < previous:
		dir = Down
	}

	e := Entry{
		Ticker:        ticker,
		Price:         price,
		PreviousPrice: previous,
		Time:          at,
		Direction:     dir,
	}
	c.entries[ticker] = e
	c.tickers[ticker] = struct{}{}
	return e
}

// Get returns the latest entry for ticker, if one exists.
func (c *Cache) Get(ticker string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ticker]
	return e, ok
}

// All returns a point-in-time copy of every cached entry, sorted by ticker.
// The returned slice is not a live view; later updates do not affect it.
func (c *Cache) All() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// AddTicker registers a ticker with the tracked set. No price needs to exist
// yet; polled producers use the tracked set to decide what to request.
func (c *Cache) AddTicker(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers[ticker] = struct{}{}
}

// RemoveTicker drops a ticker from the tracked set and purges its cached
// entry.
func (c *Cache) RemoveTicker(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickers, ticker)
	delete(c.entries, ticker)
}

// Tickers returns the tracked ticker set, sorted.
func (c *Cache) Tickers() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		out = append(out, t)
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Updated returns a channel that is closed on the next update of any ticker.
// Callers must re-fetch the channel after it fires.
func (c *Cache) Updated() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// WaitForUpdate blocks until any ticker updates or the timeout elapses. It
// reports whether an update was observed. An update that lands between the
// caller's last read and this call's channel grab still closes the grabbed
// channel, so it cannot be missed.
func (c *Cache) WaitForUpdate(timeout time.Duration) bool {
	ch := c.Updated()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
