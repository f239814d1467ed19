package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/market"
)

func TestHubForwardsSnapshots(t *testing.T) {
	cache := market.NewCache()
	hub := NewHub(cache, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, hub.Start())
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	cache.Update("AAPL", 190)
	cache.Update("MSFT", 420)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var entries []market.Entry
	require.NoError(t, json.Unmarshal(payload, &entries))
	require.NotEmpty(t, entries)

	found := map[string]float64{}
	for _, e := range entries {
		found[e.Ticker] = e.Price
		assert.Greater(t, e.Price, 0.0)
	}
	assert.Contains(t, found, "AAPL")
}

func TestHubStopClosesClients(t *testing.T) {
	cache := market.NewCache()
	hub := NewHub(cache, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, hub.Start())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, hub.Stop())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection torn down as expected
		}
	}
}

func TestHubRefusesClientsWhenStopped(t *testing.T) {
	cache := market.NewCache()
	hub := NewHub(cache, 10*time.Millisecond, zerolog.Nop())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Never started.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
	resp.Body.Close()

	// Started, then stopped: late arrivals must be refused too, not parked
	// in the client map with no loop serving them.
	require.NoError(t, hub.Start())
	require.NoError(t, hub.Stop())

	_, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
	resp.Body.Close()
}

func TestHubIdleWithoutPrices(t *testing.T) {
	cache := market.NewCache()
	hub := NewHub(cache, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, hub.Start())
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// No updates: nothing should arrive.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "no frames expected while the cache is empty")
}
