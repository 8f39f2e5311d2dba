// File: cmd/wsserver/main.go
//
// wsserver wires the built-in echo/broadcast subprotocols and the
// permessage-deflate extension into a Dispatcher and serves plain TCP
// or TLS WebSocket traffic on it. Grounded on the teacher's
// examples/lowlevel/echo/main.go: flag-parsed listen options, a
// periodic stats ticker, and SIGINT/SIGTERM-triggered graceful
// shutdown, generalized from the teacher's facade/middleware wiring to
// this module's Dispatcher/config/subprotocol/extension packages.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/config"
	"github.com/loadwave/wscore/extension/permessagedeflate"
	"github.com/loadwave/wscore/internal/dispatch"
	"github.com/loadwave/wscore/subprotocol"
)

func main() {
	addr := flag.String("addr", ":9001", "WebSocket listen address")
	certFile := flag.String("cert", "", "TLS certificate file (enables TLS if set together with -key)")
	keyFile := flag.String("key", "", "TLS key file")
	ioWorkers := flag.Int("io-workers", 0, "pool_io worker count (0 = config default)")
	subprotocolDefault := flag.String("subprotocol", "echo", "default subprotocol when a client offers none")
	deflate := flag.Bool("deflate", true, "negotiate permessage-deflate when offered")
	flag.Parse()

	echo := subprotocol.NewEcho()
	broadcast := subprotocol.NewBroadcast()
	subprotocols := map[string]api.Subprotocol{
		echo.Name():      echo,
		broadcast.Name(): broadcast,
	}

	extensions := map[string]api.Extension{}
	if *deflate {
		pmd := permessagedeflate.New()
		extensions[pmd.Name()] = pmd
	}

	opts := []config.Option{
		config.WithSubprotocols(*subprotocolDefault, "echo", "broadcast"),
		config.WithExtensions(extensionNames(extensions)...),
	}
	if *ioWorkers > 0 {
		opts = append(opts, config.WithPoolIO(*ioWorkers, api.DefaultConfig().PoolIOTasks))
	}
	cfg := config.New(opts...)

	logger := log.New(os.Stderr, "wsserver: ", log.LstdFlags)
	d := dispatch.New(cfg, subprotocols, extensions, logger)

	for _, sp := range subprotocols {
		if err := sp.Init(cfg, d.Send); err != nil {
			logger.Fatalf("subprotocol %s Init: %v", sp.Name(), err)
		}
	}
	for _, ext := range extensions {
		if err := ext.Init(cfg); err != nil {
			logger.Fatalf("extension %s Init: %v", ext.Name(), err)
		}
	}

	var tlsCfg *tls.Config
	if *certFile != "" && *keyFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			logger.Fatalf("load TLS key pair: %v", err)
		}
		tlsCfg = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	go printStats(d, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutting down")
		d.Shutdown()
	}()

	fmt.Printf("wsserver listening on %s (subprotocols: echo, broadcast; deflate: %v)\n", *addr, *deflate)
	if err := d.Serve(*addr, tlsCfg); err != nil {
		logger.Fatalf("Serve: %v", err)
	}
}

func extensionNames(extensions map[string]api.Extension) []string {
	names := make([]string, 0, len(extensions))
	for name := range extensions {
		names = append(names, name)
	}
	return names
}

func printStats(d *dispatch.Dispatcher, logger *log.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logger.Printf("active sessions: %d", d.Store().Len())
	}
}
