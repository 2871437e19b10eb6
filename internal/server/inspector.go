package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/zeusync/cubenav/internal/config"
	"github.com/zeusync/cubenav/internal/core/events/bus"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/world"
)

// clientBuffer is how many frames a slow websocket client may lag behind
// before frames are dropped for it.
const clientBuffer = 8

// SnapshotSource is what the inspector reads. *world.World satisfies it.
type SnapshotSource interface {
	Snapshot() world.Snapshot
}

// Inspector is a read-only feed of world snapshots. It takes a snapshot every
// EveryTicks ticks and pushes it to every websocket client; /snapshot serves
// the latest one.
type Inspector struct {
	src   SnapshotSource
	bus   bus.EventBus
	sub   bus.Subscription
	every uint64

	latest atomic.Pointer[[]byte]

	clients map[string]chan []byte
	mu      sync.Mutex

	srvMu   sync.RWMutex // guards server and addr
	server  *http.Server
	addr    string
	running int32 // atomic bool
	closed  int32 // atomic bool

	logger log.Log
}

// NewInspector creates an inspector and subscribes it to world ticks on b.
func NewInspector(cfg config.InspectConfig, src SnapshotSource, b bus.EventBus, logger log.Log) (*Inspector, error) {
	if cfg.EveryTicks <= 0 {
		return nil, fmt.Errorf("%w: every_ticks must be positive, got %d", ErrInvalidConfig, cfg.EveryTicks)
	}
	s := &Inspector{
		src:     src,
		bus:     b,
		every:   uint64(cfg.EveryTicks),
		clients: make(map[string]chan []byte),
		addr:    cfg.Addr,
		logger:  log.OrNop(logger).With(log.String("component", "inspector")),
	}
	sub, err := b.Subscribe(world.EventTicked, s.onTick)
	if err != nil {
		return nil, fmt.Errorf("subscribe ticks: %w", err)
	}
	s.sub = sub
	return s, nil
}

func (s *Inspector) onTick(e bus.Event) error {
	ev, ok := e.Data().(world.Ticked)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", e.Type(), e.Data())
	}
	if ev.Tick%s.every != 0 {
		return nil
	}
	return s.Refresh()
}

// Refresh takes a snapshot now and pushes it to every client.
func (s *Inspector) Refresh() error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	frame, err := json.Marshal(s.src.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.latest.Store(&frame)
	s.broadcast(frame)
	return nil
}

// Latest returns the last encoded snapshot, or nil before the first one.
func (s *Inspector) Latest() []byte {
	if p := s.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// Clients returns the number of connected websocket clients.
func (s *Inspector) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Inspector) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.clients {
		select {
		case ch <- frame:
		default:
			s.logger.Debug("client lagging, frame dropped", log.String("client_id", id))
		}
	}
}

func (s *Inspector) register(id string) (chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, false
	}
	ch := make(chan []byte, clientBuffer)
	s.clients[id] = ch
	return ch, true
}

func (s *Inspector) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[id]; ok {
		delete(s.clients, id)
		close(ch)
	}
}

// Close detaches from the bus, disconnects every client and stops the HTTP
// listener if it runs.
func (s *Inspector) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}
	err := s.bus.Unsubscribe(s.sub)

	s.mu.Lock()
	for id, ch := range s.clients {
		delete(s.clients, id)
		close(ch)
	}
	s.mu.Unlock()

	if atomic.LoadInt32(&s.running) == 1 {
		if stopErr := s.stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	s.logger.Info("Inspector closed")
	return err
}
