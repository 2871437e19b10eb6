package world

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/config"
	"github.com/zeusync/cubenav/internal/core/bridge"
	"github.com/zeusync/cubenav/internal/core/connectivity"
	"github.com/zeusync/cubenav/internal/core/events/bus"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/obstruction"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/pathfinding"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zeusync/cubenav/pkg/concurrent"
	"github.com/zeusync/cubenav/pkg/sequence"
)

// World owns the tile graph and everything that maintains it, and is the
// single entry point consumers use. Mutations and ticks take the write lock;
// path queries share the read lock, so parallel searches only ever see a
// graph between ticks.
type World struct {
	mu sync.RWMutex

	cfg          *config.Config
	reg          *tiles.Registry
	scanner      *connectivity.Scanner
	bridges      *bridge.Resolver
	obstructions *obstruction.Tracker
	finder       *pathfinding.Finder[tiles.Handle, *tiles.Tile]

	bus    bus.EventBus
	subs   []bus.Subscription
	logger log.Log

	gravity   orientation.Orientation
	ticks     uint64
	nextGroup tiles.GroupID
	cubes     map[tiles.GroupID]*cube
	closed    bool
}

// New builds a world from configuration. The world subscribes to its own
// gravity events on b, so gravity changes published by other parties are
// applied as well.
func New(cfg *config.Config, logger log.Log, b bus.EventBus) (*World, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	if b == nil {
		b = bus.New()
	}
	logger = log.OrNop(logger)

	g := cfg.Graph
	reg := tiles.NewRegistry(g.ProximityRadius, g.GridSize, logger)
	reg.SetFrame(orientation.FrameFor(cfg.World.Gravity))

	resolver := bridge.NewResolver(reg, bridge.Options{
		Radius:    g.BridgeRadius,
		Tolerance: g.BridgeAlignTolerance,
		MaxDepth:  g.MaxBridgeDepth,
	}, logger)

	w := &World{
		cfg:          cfg,
		reg:          reg,
		scanner:      connectivity.NewScanner(reg, resolver, g.ProximityRadius, logger),
		bridges:      resolver,
		obstructions: obstruction.NewTracker(reg, obstruction.Options{Margin: g.ProbeMargin, HitRadius: g.HitRadius}, logger),
		bus:          b,
		logger:       logger.With(log.String("component", "world")),
		gravity:      cfg.World.Gravity,
		cubes:        make(map[tiles.GroupID]*cube),
	}
	w.finder = pathfinding.NewFinder[tiles.Handle, *tiles.Tile](reg.Lookup,
		pathfinding.WithMaxExpanded(cfg.Pathfinding.MaxExpanded),
		pathfinding.WithLogger(logger),
	)

	sub, err := b.Subscribe(EventGravityChanged, w.onGravityChanged)
	if err != nil {
		return nil, fmt.Errorf("subscribe gravity: %w", err)
	}
	w.subs = append(w.subs, sub)
	return w, nil
}

// Close detaches the world from the bus.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	for _, s := range w.subs {
		errs = append(errs, w.bus.Unsubscribe(s))
	}
	w.subs = nil
	return errors.Join(errs...)
}

func (w *World) Config() *config.Config { return w.cfg }

func (w *World) Gravity() orientation.Orientation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gravity
}

func (w *World) TickCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ticks
}

// SetGravity announces a new world gravity. The world's own subscriber
// re-derives every tile orientation, resets bridge splices and dirties the
// whole graph; the next ticks rebuild adjacency.
func (w *World) SetGravity(o orientation.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidGravity, o)
	}
	w.mu.RLock()
	from, closed := w.gravity, w.closed
	w.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if from == o {
		return nil
	}
	return w.bus.Publish(bus.NewEvent(EventGravityChanged, eventSource, GravityChanged{From: from, To: o}))
}

func (w *World) onGravityChanged(e bus.Event) error {
	ev, ok := e.Data().(GravityChanged)
	if !ok || !ev.To.Valid() {
		return fmt.Errorf("%w: bad %s payload %T", ErrInvalidGravity, e.Type(), e.Data())
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.To == w.gravity {
		return nil
	}
	w.gravity = ev.To
	w.reg.SetFrame(orientation.FrameFor(ev.To))
	changed := w.reg.RecomputeAll()
	w.bridges.Reset()
	w.reg.MarkAllDirty()

	w.logger.Info("gravity changed",
		log.Stringer("from", ev.From),
		log.Stringer("to", ev.To),
		log.Int("reoriented", changed),
		log.Int("tiles", w.reg.Len()),
	)
	return nil
}

// Tick drains the dirty queue once and publishes EventTicked.
func (w *World) Tick() connectivity.TickStats {
	w.mu.Lock()
	stats := w.scanner.Tick()
	w.ticks++
	tick := w.ticks
	w.mu.Unlock()

	if stats.Scanned > 0 {
		w.logger.Debug("tick",
			log.Uint64("tick", tick),
			log.Int("scanned", stats.Scanned),
			log.Int("added", stats.Added),
			log.Int("removed", stats.Removed),
			log.Int("pending", stats.Pending),
		)
	}
	if err := w.bus.Publish(bus.NewEvent(EventTicked, eventSource, Ticked{Tick: tick, Stats: stats})); err != nil {
		w.logger.Warn("tick subscribers failed", log.Error(err))
	}
	return stats
}

// Settle ticks until no tile is dirty or maxTicks ran. It returns the number
// of ticks used and whether the graph is quiet.
func (w *World) Settle(maxTicks int) (int, bool) {
	for i := 1; i <= maxTicks; i++ {
		if w.Tick().Pending == 0 {
			return i, true
		}
	}
	return maxTicks, w.DirtyCount() == 0
}

func (w *World) DirtyCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reg.DirtyCount()
}

// FindPath returns the route from start to goal, both inclusive. An empty
// route means there is nowhere to go: no path, start equals goal, or an
// endpoint is stale or invalid.
func (w *World) FindPath(start, goal tiles.Handle) []tiles.Handle {
	return w.FindPathResult(start, goal).Path
}

func (w *World) FindPathResult(start, goal tiles.Handle) pathfinding.Result[tiles.Handle] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.finder.Find(start, goal)
}

// PathRequest is one entry of a FindPaths batch.
type PathRequest struct {
	Start tiles.Handle `json:"start"`
	Goal  tiles.Handle `json:"goal"`
}

// FindPaths runs a batch of searches in parallel against one graph state.
// Results are in request order.
func (w *World) FindPaths(ctx context.Context, reqs []PathRequest) ([]pathfinding.Result[tiles.Handle], error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return concurrent.Map(ctx, sequence.From(reqs), w.cfg.Pathfinding.Workers,
		func(_ context.Context, r PathRequest) (pathfinding.Result[tiles.Handle], error) {
			return w.finder.Find(r.Start, r.Goal), nil
		})
}

// Probe casts from the tile along the world direction of the gravity-relative
// orientation o and returns the tile an actor falling that way lands on. The
// first tile on the ray decides: it is a landing only if it is walkable and
// faces the fall, so a floor is landed on from above while a ceiling, a buried
// face or an obstructed tile stops the fall. Tiles of the same group and
// connectors are passed through.
func (w *World) Probe(from tiles.Handle, o orientation.Orientation) (tiles.Handle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.probe(from, o)
}

func (w *World) probe(from tiles.Handle, o orientation.Orientation) (tiles.Handle, bool) {
	src, ok := w.reg.Lookup(from)
	if !ok || !o.Valid() {
		return tiles.Handle{}, false
	}
	dir := w.reg.Frame().WorldVector(o)
	g := w.cfg.Graph
	hit, _, ok := w.reg.Raycast(src.Position(), dir, g.FallDistance, g.HitRadius, func(t *tiles.Tile) bool {
		if t.Handle() == from || t.IsConnector() {
			return false
		}
		return src.Group() == 0 || t.Group() != src.Group()
	})
	if !ok || hit.Invalid() || hit.Orientation() != o {
		return tiles.Handle{}, false
	}
	return hit.Handle(), true
}

// ReachableByFall reports whether dropping from the tile along the current
// gravity lands on target first.
func (w *World) ReachableByFall(from, target tiles.Handle) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	hit, ok := w.probe(from, orientation.Down)
	return ok && hit == target
}

// CreateTile adds a single surface tile. Cube faces are usually created with
// AddCube instead.
func (w *World) CreateTile(position mgl64.Vec3, hint orientation.Orientation, opts ...tiles.TileOption) tiles.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.CreateTile(position, hint, opts...)
}

// DestroyTile removes a tile together with its splices and obstruction
// bookkeeping and publishes EventTileDestroyed.
func (w *World) DestroyTile(h tiles.Handle) error {
	w.mu.Lock()
	group, err := w.destroyTile(h)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.publishDestroyed(h, group)
	return nil
}

func (w *World) destroyTile(h tiles.Handle) (tiles.GroupID, error) {
	t, err := w.reg.Get(h)
	if err != nil {
		return 0, err
	}
	group := t.Group()
	if w.bridges.IsConnector(h) {
		return group, w.bridges.RemoveConnector(h)
	}
	w.bridges.ForgetTile(h)
	w.obstructions.ForgetTile(h)
	return group, w.reg.DestroyTile(h)
}

func (w *World) publishDestroyed(h tiles.Handle, g tiles.GroupID) {
	if err := w.bus.Publish(bus.NewEvent(EventTileDestroyed, eventSource, TileDestroyed{Tile: h, Group: g})); err != nil {
		w.logger.Warn("tile destroyed subscribers failed", log.Error(err))
	}
}

// SetTileType changes a tile's traversal type. Held tiles keep their
// obstruction and get the new type once released.
func (w *World) SetTileType(h tiles.Handle, tt tiles.TraversalType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.obstructions.SetPrior(h, tt) {
		return nil
	}
	return w.reg.SetType(h, tt)
}

func (w *World) RecomputeOrientation(h tiles.Handle) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.RecomputeOrientation(h)
}

// SetTileTransform moves a single tile.
func (w *World) SetTileTransform(h tiles.Handle, position, down mgl64.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.SetTransform(h, position, down)
}

func (w *World) MarkDirty(h tiles.Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.MarkDirty(h)
}

// AddConnector places a bridge connector. downA and downB are the world down
// axes of its two ends.
func (w *World) AddConnector(position, axis, downA, downB mgl64.Vec3, opts ...tiles.TileOption) (tiles.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bridges.AddConnector(position, axis, downA, downB, opts...)
}

func (w *World) RemoveConnector(h tiles.Handle) error {
	w.mu.Lock()
	err := w.bridges.RemoveConnector(h)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.publishDestroyed(h, 0)
	return nil
}

// BeginObstruction demotes the tiles around a resting body and publishes
// EventObstructionBegan.
func (w *World) BeginObstruction(b obstruction.Body) ([]tiles.Handle, error) {
	w.mu.Lock()
	held, err := w.obstructions.Begin(b)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	w.publish(EventObstructionBegan, ObstructionChanged{Source: b.Source, Tiles: held})
	return held, nil
}

// UpdateObstruction re-probes a moved body.
func (w *World) UpdateObstruction(b obstruction.Body) ([]tiles.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.obstructions.Update(b)
}

// EndObstruction releases a body's tiles and publishes EventObstructionEnded.
func (w *World) EndObstruction(source obstruction.SourceID) ([]tiles.Handle, error) {
	w.mu.Lock()
	restored, err := w.obstructions.End(source)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	w.publish(EventObstructionEnded, ObstructionChanged{Source: source, Tiles: restored})
	return restored, nil
}

func (w *World) Obstructed(h tiles.Handle) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.obstructions.Obstructed(h)
}

func (w *World) publish(typ string, data any) {
	if err := w.bus.Publish(bus.NewEvent(typ, eventSource, data)); err != nil {
		w.logger.Warn("event subscribers failed", log.String("event", typ), log.Error(err))
	}
}
