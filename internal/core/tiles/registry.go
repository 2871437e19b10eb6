package tiles

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zyedidia/generic/mapset"
)

// Filter selects tiles in spatial queries. A nil Filter accepts everything.
type Filter func(*Tile) bool

type slot struct {
	gen  uint32
	tile *Tile
}

// Registry is the arena that owns every tile together with its spatial index,
// group index and dirty queue. It is not safe for concurrent mutation: all
// writes happen on the tick goroutine, reads may fan out between ticks.
type Registry struct {
	slots  []slot
	free   []uint32
	live   int
	grid   *spatialGrid
	groups map[GroupID]mapset.Set[Handle]
	dirty  mapset.Set[Handle]
	radius float64
	frame  orientation.Frame
	logger log.Log
}

// NewRegistry creates an empty registry. radius is the proximity radius used
// when a re-oriented tile dirties its new surroundings; cellSize sizes the
// spatial grid.
func NewRegistry(radius, cellSize float64, logger log.Log) *Registry {
	return &Registry{
		grid:   newSpatialGrid(cellSize),
		groups: make(map[GroupID]mapset.Set[Handle]),
		dirty:  mapset.New[Handle](),
		radius: radius,
		frame:  orientation.IdentityFrame(),
		logger: log.OrNop(logger).With(log.String("component", "tiles")),
	}
}

type tileOptions struct {
	group GroupID
	ttype TraversalType
	glue  bool
	kind  Kind
	down  *mgl64.Vec3
}

type TileOption func(*tileOptions)

func WithGroup(g GroupID) TileOption {
	return func(o *tileOptions) { o.group = g }
}

func WithType(t TraversalType) TileOption {
	return func(o *tileOptions) { o.ttype = t }
}

// WithGlue lets the tile link to tiles of its own group.
func WithGlue() TileOption {
	return func(o *tileOptions) { o.glue = true }
}

func WithKind(k Kind) TileOption {
	return func(o *tileOptions) { o.kind = k }
}

// WithDown sets an explicit world-space down axis instead of the hint's.
func WithDown(v mgl64.Vec3) TileOption {
	return func(o *tileOptions) { o.down = &v }
}

// CreateTile adds a tile whose local down axis is the gravity vector of hint
// and returns its handle. The tile starts dirty.
func (r *Registry) CreateTile(position mgl64.Vec3, hint orientation.Orientation, opts ...TileOption) Handle {
	o := tileOptions{ttype: Valid}
	for _, opt := range opts {
		opt(&o)
	}
	down := hint.GravityVector()
	if o.down != nil {
		down = *o.down
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	if s.gen == 0 {
		s.gen = 1
	}

	t := &Tile{
		handle:    Handle{index: idx, gen: s.gen},
		position:  position,
		down:      down,
		ttype:     o.ttype,
		glue:      o.glue,
		group:     o.group,
		kind:      o.kind,
		adjacency: mapset.New[Handle](),
		siblings:  mapset.New[Handle](),
		cell:      r.grid.keyFor(position),
	}
	if t.kind == KindSurface {
		t.orientation = r.frame.Classify(down)
	}
	s.tile = t
	r.live++

	r.grid.insert(t.handle, t.cell)
	r.addToGroup(t.group, t.handle)
	r.markDirty(t)

	r.logger.Debug("tile created",
		log.Stringer("tile", t.handle),
		log.Stringer("orientation", t.orientation),
		log.Stringer("type", t.ttype),
		log.Uint32("group", uint32(t.group)),
	)
	return t.handle
}

// DestroyTile unlinks the tile from every neighbour, dirtying them, and frees
// its slot.
func (r *Registry) DestroyTile(h Handle) error {
	t, err := r.Get(h)
	if err != nil {
		return fmt.Errorf("destroy tile: %w", err)
	}
	r.teardown(t)

	r.grid.remove(h, t.cell)
	r.removeFromGroup(t.group, h)
	r.dirty.Remove(h)

	s := &r.slots[h.index]
	s.tile = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	r.free = append(r.free, h.index)
	r.live--

	r.logger.Debug("tile destroyed", log.Stringer("tile", h))
	return nil
}

// Lookup resolves a handle. It reports false for stale or zero handles.
func (r *Registry) Lookup(h Handle) (*Tile, bool) {
	if h.gen == 0 || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.index]
	if s.gen != h.gen || s.tile == nil {
		return nil, false
	}
	return s.tile, true
}

// Get is Lookup with an ErrStaleHandle error.
func (r *Registry) Get(h Handle) (*Tile, error) {
	t, ok := r.Lookup(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return t, nil
}

func (r *Registry) Alive(h Handle) bool {
	_, ok := r.Lookup(h)
	return ok
}

func (r *Registry) Len() int {
	return r.live
}

// Handles returns every live handle in handle order.
func (r *Registry) Handles() []Handle {
	out := make([]Handle, 0, r.live)
	for _, s := range r.slots {
		if s.tile != nil {
			out = append(out, s.tile.handle)
		}
	}
	return out
}

// Group returns the live handles owned by g in handle order.
func (r *Registry) Group(g GroupID) []Handle {
	set, ok := r.groups[g]
	if !ok {
		return nil
	}
	return sortedHandles(set)
}

// SetType changes the traversal type. Leaving the walkable set tears down
// every edge of the tile and dirties both sides.
func (r *Registry) SetType(h Handle, tt TraversalType) error {
	t, err := r.Get(h)
	if err != nil {
		return fmt.Errorf("set type: %w", err)
	}
	if t.ttype == tt {
		return nil
	}
	prev := t.ttype
	t.ttype = tt
	if !tt.Walkable() {
		r.teardown(t)
	}
	r.markDirty(t)

	r.logger.Debug("tile type changed",
		log.Stringer("tile", h),
		log.Stringer("from", prev),
		log.Stringer("to", tt),
	)
	return nil
}

// RecomputeOrientation re-derives the orientation from the down axis under
// the current frame. On change the tile, its old neighbours and the tiles
// within the proximity radius that share the new orientation are dirtied.
func (r *Registry) RecomputeOrientation(h Handle) (bool, error) {
	t, err := r.Get(h)
	if err != nil {
		return false, fmt.Errorf("recompute orientation: %w", err)
	}
	return r.recompute(t), nil
}

// RecomputeAll re-derives every surface tile's orientation and returns how
// many changed.
func (r *Registry) RecomputeAll() int {
	changed := 0
	for _, s := range r.slots {
		if s.tile != nil && r.recompute(s.tile) {
			changed++
		}
	}
	return changed
}

func (r *Registry) recompute(t *Tile) bool {
	if t.kind == KindConnector {
		return false
	}
	next := r.frame.Classify(t.down)
	if next == t.orientation {
		return false
	}
	t.orientation = next
	r.markDirty(t)
	r.dirtyNeighbours(t)
	r.dirtySurroundings(t.position, func(o *Tile) bool { return o.orientation == next })
	return true
}

// SetTransform moves a tile and replaces its down axis, as a platform step
// or rotation does. Old and new surroundings are dirtied.
func (r *Registry) SetTransform(h Handle, position, down mgl64.Vec3) error {
	t, err := r.Get(h)
	if err != nil {
		return fmt.Errorf("set transform: %w", err)
	}
	r.dirtyNeighbours(t)

	if key := r.grid.keyFor(position); key != t.cell {
		r.grid.remove(h, t.cell)
		r.grid.insert(h, key)
		t.cell = key
	}
	t.position = position
	t.down = down

	r.recompute(t)
	r.markDirty(t)
	r.dirtySurroundings(position, nil)
	return nil
}

// SetFrame installs the frame tile orientations are classified under. It
// does not recompute anything by itself.
func (r *Registry) SetFrame(f orientation.Frame) {
	r.frame = f
}

func (r *Registry) Frame() orientation.Frame {
	return r.frame
}

// Classify classifies a world-space down axis under the current frame.
func (r *Registry) Classify(down mgl64.Vec3) orientation.Orientation {
	return r.frame.Classify(down)
}

// SetWorkingOrientation sets the orientation a connector tile borrowed from
// the tile approaching it.
func (r *Registry) SetWorkingOrientation(h Handle, o orientation.Orientation) error {
	t, err := r.Get(h)
	if err != nil {
		return fmt.Errorf("set working orientation: %w", err)
	}
	if t.kind != KindConnector {
		return fmt.Errorf("%w: %s", ErrNotConnector, h)
	}
	t.orientation = o
	return nil
}

// MarkDirty queues the tile for a rescan. It reports false for stale handles.
func (r *Registry) MarkDirty(h Handle) bool {
	t, ok := r.Lookup(h)
	if !ok {
		return false
	}
	r.markDirty(t)
	return true
}

func (r *Registry) MarkAllDirty() {
	for _, s := range r.slots {
		if s.tile != nil {
			r.markDirty(s.tile)
		}
	}
}

// DrainDirty empties the queue and returns its content in handle order. The
// tiles keep their dirty flag until MarkClean, so dirtying one of them again
// before it is scanned does not queue it twice.
func (r *Registry) DrainDirty() []Handle {
	out := sortedHandles(r.dirty)
	r.dirty = mapset.New[Handle]()
	return out
}

func (r *Registry) MarkClean(h Handle) {
	if t, ok := r.Lookup(h); ok {
		t.dirty = false
	}
}

// DirtyCount is the number of queued tiles.
func (r *Registry) DirtyCount() int {
	return r.dirty.Size()
}

func (r *Registry) markDirty(t *Tile) {
	if t.dirty {
		return
	}
	t.dirty = true
	r.dirty.Put(t.handle)
}

// SetAdjacency replaces the adjacency set of h and returns the handles that
// were added and removed, each in handle order. The far sides are untouched.
func (r *Registry) SetAdjacency(h Handle, next []Handle) (added, removed []Handle, err error) {
	t, err := r.Get(h)
	if err != nil {
		return nil, nil, fmt.Errorf("set adjacency: %w", err)
	}
	set := mapset.New[Handle]()
	for _, n := range next {
		if n != h {
			set.Put(n)
		}
	}
	set.Each(func(n Handle) {
		if !t.adjacency.Has(n) {
			added = append(added, n)
		}
	})
	t.adjacency.Each(func(n Handle) {
		if !set.Has(n) {
			removed = append(removed, n)
		}
	})
	t.adjacency = set
	sortHandles(added)
	sortHandles(removed)
	return added, removed, nil
}

// Connect adds the directed edge from -> to. Edges touching a non-walkable
// or connector tile are refused.
func (r *Registry) Connect(from, to Handle) bool {
	a, ok := r.Lookup(from)
	if !ok || from == to {
		return false
	}
	b, ok := r.Lookup(to)
	if !ok || a.Invalid() || b.Invalid() {
		return false
	}
	a.adjacency.Put(to)
	return true
}

// Disconnect removes the directed edge from -> to.
func (r *Registry) Disconnect(from, to Handle) bool {
	a, ok := r.Lookup(from)
	if !ok || !a.adjacency.Has(to) {
		return false
	}
	a.adjacency.Remove(to)
	return true
}

// LinkSiblings records a splice between a and b on both tiles.
func (r *Registry) LinkSiblings(a, b Handle) error {
	ta, err := r.Get(a)
	if err != nil {
		return fmt.Errorf("link siblings: %w", err)
	}
	tb, err := r.Get(b)
	if err != nil {
		return fmt.Errorf("link siblings: %w", err)
	}
	ta.siblings.Put(b)
	tb.siblings.Put(a)
	return nil
}

// UnlinkSiblings drops the splice between a and b from whichever side is
// still alive.
func (r *Registry) UnlinkSiblings(a, b Handle) {
	if ta, ok := r.Lookup(a); ok {
		ta.siblings.Remove(b)
	}
	if tb, ok := r.Lookup(b); ok {
		tb.siblings.Remove(a)
	}
}

// QueryRadius returns the tiles within r of center that pass filter, nearest
// first with ties broken by handle.
func (r *Registry) QueryRadius(center mgl64.Vec3, radius float64, filter Filter) []*Tile {
	type hit struct {
		t    *Tile
		dist float64
	}
	var hits []hit
	ext := mgl64.Vec3{radius, radius, radius}
	r.grid.cellsInBox(center.Sub(ext), center.Add(ext), 0, func(cell mapset.Set[Handle]) {
		cell.Each(func(h Handle) {
			t, ok := r.Lookup(h)
			if !ok {
				return
			}
			d := t.position.Sub(center).Len()
			if d > radius || (filter != nil && !filter(t)) {
				return
			}
			hits = append(hits, hit{t: t, dist: d})
		})
	})
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].t.handle.Less(hits[j].t.handle)
	})
	out := make([]*Tile, len(hits))
	for i := range hits {
		out[i] = hits[i].t
	}
	return out
}

// Raycast returns the first tile passing filter whose centre lies within
// hitRadius of the segment origin + dir*[0, maxDist].
func (r *Registry) Raycast(origin, dir mgl64.Vec3, maxDist, hitRadius float64, filter Filter) (*Tile, float64, bool) {
	if dir.Len() == 0 || maxDist <= 0 {
		return nil, 0, false
	}
	dir = dir.Normalize()

	var (
		best     *Tile
		bestDist = math.Inf(1)
	)
	consider := func(h Handle) {
		t, ok := r.Lookup(h)
		if !ok {
			return
		}
		along, perp := rayDistance(origin, dir, t.position)
		if along < 0 || along > maxDist || perp > hitRadius {
			return
		}
		if filter != nil && !filter(t) {
			return
		}
		if along < bestDist || (along == bestDist && t.handle.Less(best.handle)) {
			best, bestDist = t, along
		}
	}

	end := origin.Add(dir.Mul(maxDist))
	pad := mgl64.Vec3{hitRadius, hitRadius, hitRadius}
	bmin := mgl64.Vec3{math.Min(origin[0], end[0]), math.Min(origin[1], end[1]), math.Min(origin[2], end[2])}.Sub(pad)
	bmax := mgl64.Vec3{math.Max(origin[0], end[0]), math.Max(origin[1], end[1]), math.Max(origin[2], end[2])}.Add(pad)

	visit := func(cell mapset.Set[Handle]) { cell.Each(consider) }
	if n := r.grid.cellsInBox(bmin, bmax, r.live+1, visit); n > r.live+1 {
		// a long diagonal ray covers more cells than there are tiles
		for _, s := range r.slots {
			if s.tile != nil {
				consider(s.tile.handle)
			}
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestDist, true
}

// teardown removes every edge and splice of t, dirtying the far sides.
func (r *Registry) teardown(t *Tile) {
	t.adjacency.Each(func(n Handle) {
		if far, ok := r.Lookup(n); ok {
			far.adjacency.Remove(t.handle)
			far.siblings.Remove(t.handle)
			r.markDirty(far)
		}
	})
	t.siblings.Each(func(n Handle) {
		if far, ok := r.Lookup(n); ok {
			far.siblings.Remove(t.handle)
			far.adjacency.Remove(t.handle)
			r.markDirty(far)
		}
	})
	t.adjacency = mapset.New[Handle]()
	t.siblings = mapset.New[Handle]()
}

func (r *Registry) dirtyNeighbours(t *Tile) {
	t.adjacency.Each(func(n Handle) {
		if far, ok := r.Lookup(n); ok {
			r.markDirty(far)
		}
	})
}

func (r *Registry) dirtySurroundings(center mgl64.Vec3, filter Filter) {
	for _, o := range r.QueryRadius(center, r.radius, filter) {
		if o.kind == KindSurface {
			r.markDirty(o)
		}
	}
}

func (r *Registry) addToGroup(g GroupID, h Handle) {
	if g == 0 {
		return
	}
	set, ok := r.groups[g]
	if !ok {
		set = mapset.New[Handle]()
		r.groups[g] = set
	}
	set.Put(h)
}

func (r *Registry) removeFromGroup(g GroupID, h Handle) {
	set, ok := r.groups[g]
	if !ok {
		return
	}
	set.Remove(h)
	if set.Size() == 0 {
		delete(r.groups, g)
	}
}
