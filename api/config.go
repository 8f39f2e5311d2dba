// File: api/config.go
// Package api
//
// Config is the single value the core consumes to learn its operating
// limits, timeouts, and negotiation tables. Loading it from disk (JSON,
// flags, env) is an external concern; the core only ever sees a
// populated *Config.

package api

import "time"

// Route describes host/origin/subprotocol overrides for a path prefix,
// mirroring the original implementation's per-path config blocks.
// Handshake negotiation does not read Config.Routes; only the global
// tables apply.
type Route struct {
	Path               string
	Hosts              []string
	Origins            []string
	SubprotocolDefault string
}

// Config lists every tunable named in the specification's external
// interfaces section.
type Config struct {
	// Size limits.
	SizeURI        int // max request-target length
	SizeHeader     int // max total handshake header size
	SizePayload    int // max inbound frame payload (larger closes 1009); the handshake does not check its body against it
	SizeBuffer     int // read/write chunk size
	SizeRingBuffer int // outbound ring buffer slot count per session
	SizeFrame      int // outbound chunk size for message→frame splitting
	MaxFrames      int // cap on inbound fragments per message

	// Worker pools.
	PoolIOWorkers      int
	PoolIOTasks        int
	PoolConnectWorkers int
	PoolConnectTasks   int

	// Timeouts.
	TimeoutPoll   time.Duration
	TimeoutRead   time.Duration
	TimeoutWrite  time.Duration
	TimeoutClient time.Duration
	TimeoutPings  time.Duration

	// Listener.
	PortHTTP  int
	PortHTTPS int

	// Negotiation tables.
	Hosts                []string
	Origins              []string
	Paths                []string
	Queries              []string
	Subprotocols         []string
	SubprotocolsDefault  string
	Extensions           []string
	Routes               []Route

	// TLS material is optional; nil means plaintext-only.
	TLS *TLSConfig
}

// TLSConfig is the seam the core calls through; the bindings themselves
// (certificate loading, cipher selection) are an external collaborator.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	// Provider, when set, lets a caller substitute its own TLS listener
	// wrapper instead of crypto/tls defaults (e.g. an HSM-backed one).
	Provider TLSProvider
}

// TLSProvider wraps a plain net.Listener with TLS termination. The core
// never constructs TLS state itself — it only calls this seam.
type TLSProvider interface {
	Wrap(inner interface{ Close() error }) (interface{ Close() error }, error)
}

// DefaultConfig returns conservative defaults suitable for development.
func DefaultConfig() *Config {
	return &Config{
		SizeURI:             2048,
		SizeHeader:          8192,
		SizePayload:         1 << 20,
		SizeBuffer:          64 * 1024,
		SizeRingBuffer:      1024,
		SizeFrame:           16 * 1024,
		MaxFrames:           4096,
		PoolIOWorkers:       8,
		PoolIOTasks:         4096,
		PoolConnectWorkers:  2,
		PoolConnectTasks:    1024,
		TimeoutPoll:         time.Second,
		TimeoutRead:         30 * time.Second,
		TimeoutWrite:        30 * time.Second,
		TimeoutClient:       60 * time.Second,
		TimeoutPings:        20 * time.Second,
		PortHTTP:            8080,
		SubprotocolsDefault: "",
	}
}
