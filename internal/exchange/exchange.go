package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"accountflow/models"
)

// Service is the contract every exchange orchestrator satisfies. A service
// owns its REST client, WebSocket client and cache partition, runs the
// periodic refresh loop and merges streaming deltas into its snapshot.
type Service interface {
	// Name returns the lowercase exchange identifier used as store prefix.
	Name() string

	// Start launches the refresh loop and streaming layer. It returns an
	// error when the service is already running or has no credentials.
	Start(ctx context.Context) error

	// Stop shuts down the refresh loop and closes the stream, waiting for
	// in-flight work to settle.
	Stop()

	// SetCredentials swaps API credentials, repoints the cache partition
	// at the new credential hash and forces a stream reconnect. Safe to
	// call before Start.
	SetCredentials(creds Credentials) error

	// LoadSymbolKLines seeds the candle series for a symbol and period
	// from REST and subscribes to live updates.
	LoadSymbolKLines(ctx context.Context, symbol string, period models.Period) error

	// RemoveSymbolKLines unsubscribes the live feed and drops the series.
	RemoveSymbolKLines(symbol string, period models.Period)
}

// Credentials identifies one exchange account. Passphrase is empty for
// exchanges that do not use one.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// IsZero reports whether no credentials have been provided.
func (c Credentials) IsZero() bool {
	return c.APIKey == "" && c.APISecret == ""
}

// Hash returns a stable hex digest of the credential tuple. It partitions
// the on-disk cache so histories from different accounts never mix.
func (c Credentials) Hash() string {
	h := sha256.New()
	h.Write([]byte(c.APIKey))
	h.Write([]byte{0})
	h.Write([]byte(c.APISecret))
	if c.Passphrase != "" {
		h.Write([]byte{0})
		h.Write([]byte(c.Passphrase))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
