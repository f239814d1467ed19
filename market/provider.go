package market

// Provider is a background producer of price updates. Exactly one provider
// writes into the cache for the life of the process; which concrete
// implementation runs (simulator or polled feed) is decided once at startup
// by configuration.
//
// Start launches the producer's loop and returns. Stop signals the loop to
// exit and blocks until it has actually terminated, so callers can safely
// release anything the loop was using.
type Provider interface {
	Start() error
	Stop() error
}
