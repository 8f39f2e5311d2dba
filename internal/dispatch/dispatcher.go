// File: internal/dispatch/dispatcher.go
//
// Dispatcher owns the listener goroutine, the two worker pools, the
// sessions table, and the cleanup thread described in spec.md §4.D.
// Grounded on the teacher's server/server.go Serve/Shutdown shape,
// generalized from its single handler chain into the specification's
// pool_connect/pool_io split and explicit state-machine worker steps.
package dispatch

import (
	"crypto/tls"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/session"
	"github.com/loadwave/wscore/reactor"
)

// ErrAlreadyRunning is returned by Serve if called more than once.
var ErrAlreadyRunning = errors.New("dispatch: already running")

// Dispatcher is the top-level server core: it accepts connections,
// negotiates the handshake, and drives each session's read/write steps
// through the two bounded pools until the session closes.
type Dispatcher struct {
	cfg *api.Config

	subprotocols map[string]api.Subprotocol
	extensions   map[string]api.Extension

	store *session.Store

	poolConnect *Pool
	poolIO      *Pool

	listener   net.Listener
	tcpListen  *net.TCPListener
	listenerFd uintptr
	re         reactor.Reactor

	logger *log.Logger

	running       atomic.Bool
	closeCh       chan struct{}
	wg            sync.WaitGroup
	disconnecting sync.Map // session ID -> struct{}, guards against concurrent double-disconnect
}

// New constructs a Dispatcher from cfg and the negotiable subprotocol
// and extension registries, keyed by their Sec-WebSocket-Protocol /
// Sec-WebSocket-Extensions token.
func New(cfg *api.Config, subprotocols map[string]api.Subprotocol, extensions map[string]api.Extension, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		cfg:          cfg,
		subprotocols: subprotocols,
		extensions:   extensions,
		store:        session.NewStore(16),
		poolConnect:  NewPool("pool_connect", cfg.PoolConnectWorkers, cfg.PoolConnectTasks),
		poolIO:       NewPool("pool_io", cfg.PoolIOWorkers, cfg.PoolIOTasks),
		logger:       logger,
		closeCh:      make(chan struct{}),
	}
}

// Serve binds addr (plain TCP, or TLS if tlsCfg is non-nil; cfg.TLS is
// not consulted)
// and runs the dispatcher loop until Shutdown is called or a fatal
// listener error occurs.
func (d *Dispatcher) Serve(addr string, tlsCfg *tls.Config) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	rawLn, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	tcpLn := rawLn.(*net.TCPListener)
	d.tcpListen = tcpLn

	var ln net.Listener = tcpLn
	if tlsCfg != nil {
		ln = tls.NewListener(tcpLn, tlsCfg)
	}
	d.listener = ln

	re, err := reactor.New()
	if err != nil {
		// Non-POSIX platforms have no reactor backend (reactor_unsupported.go);
		// fall back to a plain blocking Accept loop driven by the Go
		// runtime's own netpoller, unblocked on Shutdown by closing
		// the listener.
		d.logger.Printf("dispatch: reactor unavailable (%v), falling back to blocking accept", err)
	} else if rc, err := tcpLn.SyscallConn(); err == nil {
		var regErr error
		rc.Control(func(fd uintptr) {
			d.listenerFd = fd
			regErr = re.Register(fd, 0, reactor.EventRead)
		})
		if regErr == nil {
			d.re = re
		} else {
			d.logger.Printf("dispatch: reactor registration failed (%v), falling back to blocking accept", regErr)
			re.Close()
		}
	} else {
		re.Close()
	}

	d.wg.Add(2)
	go d.acceptLoop()
	go d.cleanupLoop()

	d.wg.Wait()
	return nil
}

// Shutdown stops accepting new connections and unblocks the listener
// and cleanup loops. It does not forcibly close in-flight sessions;
// callers that need that should iterate Store and Cancel each one.
func (d *Dispatcher) Shutdown() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.closeCh)
	if d.re != nil {
		d.re.Close()
	}
	if d.listener != nil {
		d.listener.Close()
	}
	d.poolConnect.Close()
	d.poolIO.Close()
}

// Store exposes the sessions table, e.g. for an admin endpoint or test
// assertions.
func (d *Dispatcher) Store() *session.Store { return d.store }

func (d *Dispatcher) acceptLoop() {
	defer d.wg.Done()
	if d.re != nil {
		d.reactorAcceptLoop()
		return
	}
	d.blockingAcceptLoop()
}

// blockingAcceptLoop is the idiomatic Go fallback: net.Listener.Accept
// already parks on the runtime's own netpoller, and Shutdown unblocks
// it by closing the listener.
func (d *Dispatcher) blockingAcceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.closeCh:
				return
			default:
				d.logger.Printf("dispatch: accept error: %v", err)
				continue
			}
		}
		d.dispatchAccepted(conn)
	}
}

// reactorAcceptLoop mirrors spec.md §4.D's dispatcher loop literally
// for the listening socket: Wait blocks until the listener fd is
// readable or the close-pipe (reactor.Close, via Shutdown) fires, then
// drains every pending connection before waiting again. Edge-triggered
// backends can coalesce several pending connections into one
// notification, so draining uses a short deadline on the listener to
// detect "no more pending" instead of assuming exactly one.
func (d *Dispatcher) reactorAcceptLoop() {
	events := make([]reactor.Event, 16)
	for {
		n, err := d.re.Wait(events, int(d.cfg.TimeoutPoll/time.Millisecond))
		if err != nil {
			select {
			case <-d.closeCh:
				return
			default:
				d.logger.Printf("dispatch: reactor wait error: %v", err)
				return
			}
		}
		for i := 0; i < n; i++ {
			if events[i].Fd != d.listenerFd {
				continue
			}
			d.drainAccepts()
		}
	}
}

func (d *Dispatcher) drainAccepts() {
	for {
		d.tcpListen.SetDeadline(time.Now().Add(time.Millisecond))
		conn, err := d.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			select {
			case <-d.closeCh:
				return
			default:
				d.logger.Printf("dispatch: accept error: %v", err)
				return
			}
		}
		d.dispatchAccepted(conn)
	}
}

func (d *Dispatcher) dispatchAccepted(conn net.Conn) {
	c := conn
	if err := d.poolConnect.Submit(func() { d.handleAccept(c) }); err != nil {
		d.logger.Printf("dispatch: pool_connect overflow, dropping connection from %s: %v", c.RemoteAddr(), err)
		c.Close()
	}
}
