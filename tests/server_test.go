// File: tests/server_test.go
//
// Shared black-box test harness: starts a real Dispatcher bound to an
// ephemeral port with the echo/broadcast subprotocols and
// permessage-deflate registered, exactly as cmd/wsserver wires them,
// and hands back a ws:// URL a real client library can dial. Grounded
// on internal/dispatch/dispatcher_test.go's startTestDispatcher, lifted
// out to this module's black-box vantage point (it can only see the
// public api/config/dispatch/subprotocol/extension packages, not
// internal/wire).
package tests

import (
	"net"
	"testing"
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/config"
	"github.com/loadwave/wscore/extension/permessagedeflate"
	"github.com/loadwave/wscore/internal/dispatch"
	"github.com/loadwave/wscore/subprotocol"
)

// startServer boots a Dispatcher with the echo and broadcast
// subprotocols and permessage-deflate negotiable, and returns its
// ws://host:port base URL. The Dispatcher is shut down via t.Cleanup.
func startServer(t *testing.T) string {
	t.Helper()

	echo := subprotocol.NewEcho()
	broadcast := subprotocol.NewBroadcast()
	pmd := permessagedeflate.New()

	cfg := config.New(
		config.WithSubprotocols("echo", "echo", "broadcast"),
		config.WithExtensions(pmd.Name()),
		config.WithTimeouts(50*time.Millisecond, time.Second, time.Second, 5*time.Second, 0),
		config.WithSizes(2048, 8192, 1<<20, 32*1024, 64, 1<<16, 2048),
	)

	subprotocols := map[string]api.Subprotocol{
		echo.Name():      echo,
		broadcast.Name(): broadcast,
	}
	extensions := map[string]api.Extension{pmd.Name(): pmd}

	d := dispatch.New(cfg, subprotocols, extensions, nil)
	if err := echo.Init(cfg, d.Send); err != nil {
		t.Fatalf("echo.Init: %v", err)
	}
	if err := broadcast.Init(cfg, d.Send); err != nil {
		t.Fatalf("broadcast.Init: %v", err)
	}
	if err := pmd.Init(cfg); err != nil {
		t.Fatalf("permessage-deflate Init: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	go d.Serve(addr, nil)
	t.Cleanup(d.Shutdown)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return "ws://" + addr
}
