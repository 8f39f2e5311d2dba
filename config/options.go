// File: config/options.go
//
// Functional options over api.Config, grounded on the teacher's
// server/options.go ServerOption pattern (func(*Server)) — here applied
// to the Config value the dispatcher actually consumes instead of to a
// facade type, since this module's entrypoint builds a Dispatcher
// directly rather than wrapping it behind a Server facade.
package config

import (
	"time"

	"github.com/loadwave/wscore/api"
)

// Option customizes a Config built by New.
type Option func(*api.Config)

// New returns api.DefaultConfig() with opts applied in order.
func New(opts ...Option) *api.Config {
	cfg := api.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithPorts sets the plaintext and TLS listener ports.
func WithPorts(http, https int) Option {
	return func(c *api.Config) {
		c.PortHTTP = http
		c.PortHTTPS = https
	}
}

// WithTLS attaches TLS material; a nil tls argument leaves the server
// plaintext-only.
func WithTLS(tls *api.TLSConfig) Option {
	return func(c *api.Config) { c.TLS = tls }
}

// WithTimeouts overrides the poll/read/write/client/ping timeouts.
func WithTimeouts(poll, read, write, client, pings time.Duration) Option {
	return func(c *api.Config) {
		c.TimeoutPoll = poll
		c.TimeoutRead = read
		c.TimeoutWrite = write
		c.TimeoutClient = client
		c.TimeoutPings = pings
	}
}

// WithPoolIO sizes the pool_io worker pool: numWorkers bounds concurrent
// frame processing, tasks bounds the queue depth before Submit reports
// overflow.
func WithPoolIO(numWorkers, tasks int) Option {
	return func(c *api.Config) {
		c.PoolIOWorkers = numWorkers
		c.PoolIOTasks = tasks
	}
}

// WithPoolConnect sizes the pool_connect worker pool handling handshakes.
func WithPoolConnect(numWorkers, tasks int) Option {
	return func(c *api.Config) {
		c.PoolConnectWorkers = numWorkers
		c.PoolConnectTasks = tasks
	}
}

// WithSizes overrides the handshake and frame size limits.
func WithSizes(uri, header, payload, buffer, ring, frame, maxFrames int) Option {
	return func(c *api.Config) {
		c.SizeURI = uri
		c.SizeHeader = header
		c.SizePayload = payload
		c.SizeBuffer = buffer
		c.SizeRingBuffer = ring
		c.SizeFrame = frame
		c.MaxFrames = maxFrames
	}
}

// WithHosts restricts accepted Host headers; an empty list (the
// default) accepts any host.
func WithHosts(hosts ...string) Option {
	return func(c *api.Config) { c.Hosts = hosts }
}

// WithOrigins restricts accepted Origin headers; an empty list (the
// default) accepts any origin, including none at all.
func WithOrigins(origins ...string) Option {
	return func(c *api.Config) { c.Origins = origins }
}

// WithPaths restricts accepted request paths; an empty list (the
// default) accepts any path.
func WithPaths(paths ...string) Option {
	return func(c *api.Config) { c.Paths = paths }
}

// WithQueries stores a query-string allowlist in Config.Queries,
// mirroring the original implementation's query-allowlist config block.
// The handshake does not read it: query strings are not matched.
func WithQueries(queries ...string) Option {
	return func(c *api.Config) { c.Queries = queries }
}

// WithSubprotocols lists the Sec-WebSocket-Protocol tokens a client may
// offer and which, if any, is selected when a client connects without
// offering one at all.
func WithSubprotocols(defaultName string, names ...string) Option {
	return func(c *api.Config) {
		c.Subprotocols = names
		c.SubprotocolsDefault = defaultName
	}
}

// WithExtensions lists the Sec-WebSocket-Extensions tokens a client may
// negotiate.
func WithExtensions(names ...string) Option {
	return func(c *api.Config) { c.Extensions = names }
}

// WithRoutes stores per-path-prefix host/origin/subprotocol overrides
// in Config.Routes, mirroring the original implementation's per-path
// config blocks. The handshake does not read them; matching uses only
// the global Hosts, Origins, Paths and SubprotocolsDefault.
func WithRoutes(routes ...api.Route) Option {
	return func(c *api.Config) { c.Routes = routes }
}
