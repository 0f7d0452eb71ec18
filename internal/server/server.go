// Package server implements the acceptor and lifecycle component (spec
// §4.7): bind and listen, admission control, worker spawn, graceful
// shutdown. It is grounded on the teacher's internal/server package shape
// (a Server wrapping listeners and a capacity gate) combined with
// droyo-styx's accept-loop backoff-on-temporary-error idiom, since the
// teacher's own Listener/ConnectionHandler types were referenced by its
// server.go but never present in the retrieved sources.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/GliAcopo/pgmd/internal/credstore"
	"github.com/GliAcopo/pgmd/internal/logging"
	"github.com/GliAcopo/pgmd/internal/mailstore"
	"github.com/GliAcopo/pgmd/internal/metrics"
	"github.com/GliAcopo/pgmd/internal/registry"
	"github.com/GliAcopo/pgmd/internal/session"
	"github.com/GliAcopo/pgmd/internal/workerpool"
)

// Capacity bounds the active-session admission control (spec §4.7): the
// 11th concurrent connection is accepted then immediately closed.
const Capacity = 10

const (
	minBackoff = time.Millisecond
	maxBackoff = time.Second
)

// Config holds everything needed to construct a Server.
type Config struct {
	Port    int
	BaseDir string
	Logger  *slog.Logger
	Metrics metrics.Collector
}

// Server is pgmd's acceptor: one listening socket, the admission-control
// gate, the worker table, and the shared stores every spawned session is
// wired against.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Collector

	mail *mailstore.Store
	cred *credstore.Store
	reg  *registry.Registry
	pool *workerpool.Pool

	gate *ActiveSessionGate

	mu       sync.Mutex
	listener *net.TCPListener

	wg         sync.WaitGroup
	nextWorker int
}

// New constructs a Server. It does not bind a socket until Run is called.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("info")
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		mail:    mailstore.New(cfg.BaseDir),
		cred:    credstore.New(cfg.BaseDir),
		reg:     registry.New(),
		pool:    workerpool.New(),
		gate:    NewActiveSessionGate(Capacity, collector.RegistrySaturated),
	}
}

// Run binds the listening socket, prints reachable addresses, and runs the
// accept loop until ctx is canceled. It always performs the full shutdown
// sequence (spec §4.7) before returning.
func (s *Server) Run(ctx context.Context) error {
	addr := &net.TCPAddr{Port: s.cfg.Port}
	ln, err := net.ListenTCP("tcp4", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.printAddresses(ln)
	s.logger.Info("pgmd listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Unlock()
	}()

	backoff := minBackoff
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if temp, ok := err.(interface{ Temporary() bool }); ok && temp.Temporary() {
				s.logger.Warn("accept error, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				if backoff *= 2; backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			s.shutdown()
			return fmt.Errorf("server: accept: %w", err)
		}
		backoff = minBackoff
		s.admit(ctx, conn)
	}

	s.shutdown()
	s.logger.Info("pgmd stopped")
	return nil
}

// admit implements the acceptor's per-connection admission control and
// worker spawn (spec §4.7).
func (s *Server) admit(ctx context.Context, conn *net.TCPConn) {
	if !s.gate.Admit() {
		_ = conn.Close()
		return
	}

	slot, err := s.pool.Acquire(ctx, conn, s.allocateWorkerID())
	if err != nil {
		// Shutdown was requested while probing for a free slot.
		s.gate.Release()
		_ = conn.Close()
		return
	}

	s.wg.Add(1)
	go s.serve(ctx, conn, slot)
}

// serve runs one session to completion and rolls back its worker and
// admission-control slots.
func (s *Server) serve(ctx context.Context, conn *net.TCPConn, slot int) {
	defer s.wg.Done()
	defer s.pool.Release(slot)
	defer s.gate.Release()

	sess := session.New(conn, slot, s.mail, s.cred, s.reg, s.metrics, s.logger)
	sess.Run(ctx)
}

// shutdown implements the shutdown sequence from spec §4.7: snapshot the
// worker table, half-close every recorded connection to unblock a worker
// stuck in recv, then join.
func (s *Server) shutdown() {
	for _, conn := range s.pool.Snapshot() {
		if err := conn.CloseRead(); err != nil {
			s.logger.Debug("half-close failed during shutdown", "error", err)
		}
	}
	s.wg.Wait()
}

func (s *Server) allocateWorkerID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWorker++
	return s.nextWorker
}

// printAddresses enumerates non-loopback interface addresses best-effort
// (spec §4.7): a failure to enumerate interfaces does not prevent startup.
func (s *Server) printAddresses(ln *net.TCPListener) {
	port := ln.Addr().(*net.TCPAddr).Port
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		s.logger.Warn("could not enumerate interface addresses", "error", err)
		return
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		s.logger.Info("reachable at", "address", fmt.Sprintf("%s:%d", ipNet.IP.String(), port))
	}
}
