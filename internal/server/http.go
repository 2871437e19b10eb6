package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/cubenav/internal/core/observability/log"
)

const shutdownTimeout = 5 * time.Second

// Start listens on the configured address and serves in the background.
func (s *Inspector) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.srvMu.Lock()
	defer s.srvMu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.addr = ln.Addr().String()
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Inspector stopped serving", log.Error(err))
		}
	}()

	s.logger.Info("Inspector listening", log.String("addr", s.addr))
	return nil
}

// Stop shuts the HTTP listener down. Connected clients are dropped.
func (s *Inspector) Stop(_ context.Context) error {
	if atomic.LoadInt32(&s.running) == 0 {
		return ErrServerNotRunning
	}
	return s.stop()
}

func (s *Inspector) stop() error {
	// waits for a concurrent Start to publish its server
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Shutdown does not wait for hijacked websocket connections.
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("Inspector stopped")
	return nil
}

// Addr returns the listen address, resolved once Start succeeded.
func (s *Inspector) Addr() string {
	s.srvMu.RLock()
	defer s.srvMu.RUnlock()
	return s.addr
}

func (s *Inspector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		s.handleWebSocket(w, r)
	case "/snapshot":
		s.handleSnapshot(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Inspector) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame := s.Latest()
	if frame == nil {
		if err := s.Refresh(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		frame = s.Latest()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(frame); err != nil {
		s.logger.Debug("snapshot write failed", log.Error(err))
	}
}
