package portfolio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrade/metrics"
)

// SnapshotRecorder appends a portfolio value snapshot on a fixed interval.
// A failed snapshot is logged and counted; the loop always continues to its
// next tick.
type SnapshotRecorder struct {
	acct     *Accountant
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSnapshotRecorder(acct *Accountant, interval time.Duration, log zerolog.Logger) *SnapshotRecorder {
	return &SnapshotRecorder{acct: acct, interval: interval, log: log}
}

// Start launches the periodic loop. Starting a running recorder is an error.
func (r *SnapshotRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("snapshot recorder: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.run(ctx, done)
	return nil
}

// Stop halts the loop and waits for it to exit. No-op when not running.
func (r *SnapshotRecorder) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (r *SnapshotRecorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := r.acct.TakeSnapshot(); err != nil {
				metrics.SnapshotFailuresTotal.Inc()
				r.log.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}
