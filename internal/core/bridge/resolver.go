package bridge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zyedidia/generic/mapset"
)

// Connector is a stairway-like entity that splices tiles across itself. Its
// backing tile lives in the registry but never carries adjacency.
type Connector struct {
	Tile tiles.Handle
	// Axis is the normalised world direction the connector bridges along.
	Axis mgl64.Vec3
	// Ends holds the world-space down axes at both ends. They are equal for a
	// straight stairway and differ for one wrapping a cube edge.
	Ends [2]mgl64.Vec3
}

type spliceKey struct {
	a, b tiles.Handle
}

func keyOf(a, b tiles.Handle) spliceKey {
	if b.Less(a) {
		a, b = b, a
	}
	return spliceKey{a: a, b: b}
}

type splice struct {
	a, b tiles.Handle
	// chain lists the connectors crossed going from a to b.
	chain []tiles.Handle
}

func (s *splice) other(h tiles.Handle) tiles.Handle {
	if s.a == h {
		return s.b
	}
	return s.a
}

func (s *splice) routesThrough(c tiles.Handle) bool {
	for _, h := range s.chain {
		if h == c {
			return true
		}
	}
	return false
}

// Splice is the exported view of a cached splice edge.
type Splice struct {
	A     tiles.Handle   `json:"a"`
	B     tiles.Handle   `json:"b"`
	Chain []tiles.Handle `json:"chain"`
}

// Options tunes the resolver.
type Options struct {
	// Radius bounds the proximity search around a connector.
	Radius float64
	// Tolerance is the largest perpendicular offset from the bridging axis a
	// candidate may have.
	Tolerance float64
	// MaxDepth bounds how many connectors one search may chain through.
	MaxDepth int
}

// Resolver owns the bridge connectors and the splice edges they produce.
type Resolver struct {
	reg        *tiles.Registry
	opts       Options
	connectors map[tiles.Handle]*Connector
	splices    map[spliceKey]*splice
	byTile     map[tiles.Handle]mapset.Set[spliceKey]
	logger     log.Log
}

func NewResolver(reg *tiles.Registry, opts Options, logger log.Log) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	return &Resolver{
		reg:        reg,
		opts:       opts,
		connectors: make(map[tiles.Handle]*Connector),
		splices:    make(map[spliceKey]*splice),
		byTile:     make(map[tiles.Handle]mapset.Set[spliceKey]),
		logger:     log.OrNop(logger).With(log.String("component", "bridge")),
	}
}

// AddConnector creates a connector backing tile at position and registers
// it. Tiles around it are dirtied so they discover it on the next tick.
func (r *Resolver) AddConnector(position, axis, downA, downB mgl64.Vec3, opts ...tiles.TileOption) (tiles.Handle, error) {
	if axis.Len() < 1e-9 {
		return tiles.Handle{}, ErrZeroAxis
	}
	opts = append(opts, tiles.WithKind(tiles.KindConnector), tiles.WithDown(downA))
	h := r.reg.CreateTile(position, orientation.None, opts...)
	r.connectors[h] = &Connector{Tile: h, Axis: axis.Normalize(), Ends: [2]mgl64.Vec3{downA, downB}}
	r.dirtyAround(position)

	r.logger.Debug("connector added", log.Stringer("connector", h))
	return h, nil
}

// RemoveConnector drops every splice through the connector and destroys its
// backing tile.
func (r *Resolver) RemoveConnector(h tiles.Handle) error {
	if _, ok := r.connectors[h]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, h)
	}
	r.InvalidateConnector(h)
	delete(r.connectors, h)
	if err := r.reg.DestroyTile(h); err != nil {
		return fmt.Errorf("remove connector: %w", err)
	}
	return nil
}

// SetAxis re-points a connector and drops its splices.
func (r *Resolver) SetAxis(h tiles.Handle, axis mgl64.Vec3) error {
	c, ok := r.connectors[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, h)
	}
	if axis.Len() < 1e-9 {
		return ErrZeroAxis
	}
	c.Axis = axis.Normalize()
	r.InvalidateConnector(h)
	return nil
}

// SetEnds replaces the connector's end down axes, as rotating it does.
func (r *Resolver) SetEnds(h tiles.Handle, downA, downB mgl64.Vec3) error {
	c, ok := r.connectors[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, h)
	}
	c.Ends = [2]mgl64.Vec3{downA, downB}
	r.InvalidateConnector(h)
	return nil
}

func (r *Resolver) Connector(h tiles.Handle) (Connector, bool) {
	c, ok := r.connectors[h]
	if !ok {
		return Connector{}, false
	}
	return *c, true
}

func (r *Resolver) IsConnector(h tiles.Handle) bool {
	_, ok := r.connectors[h]
	return ok
}

// Connectors returns every connector handle in handle order.
func (r *Resolver) Connectors() []tiles.Handle {
	out := make([]tiles.Handle, 0, len(r.connectors))
	for h := range r.connectors {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FindSibling crosses connector starting from the tile from and returns the
// tile on the far side. A found sibling is registered as a splice on both
// tiles. Malformed chains are logged and yield no sibling.
func (r *Resolver) FindSibling(connector, from tiles.Handle) (tiles.Handle, bool) {
	sib, chain, err := r.resolve(connector, from)
	if err != nil {
		r.logger.Warn("bridge search aborted",
			log.Stringer("connector", connector),
			log.Stringer("from", from),
			log.Error(err),
		)
		return tiles.Handle{}, false
	}
	if sib.IsZero() {
		return tiles.Handle{}, false
	}
	r.link(from, sib, chain)
	return sib, true
}

// resolve runs the search without touching the splice cache.
func (r *Resolver) resolve(connector, from tiles.Handle) (tiles.Handle, []tiles.Handle, error) {
	ft, ok := r.reg.Lookup(from)
	if !ok || ft.Invalid() || ft.IsConnector() {
		return tiles.Handle{}, nil, nil
	}
	visited := mapset.New[tiles.Handle]()
	return r.search(connector, from, from, ft.Orientation(), visited, 1)
}

// search adopts incoming as the working orientation of conn and looks for
// the first aligned tile on its far side. Connectors found on the way are
// recursed into with conn as the previous tile.
func (r *Resolver) search(conn, prev, origin tiles.Handle, incoming orientation.Orientation, visited mapset.Set[tiles.Handle], depth int) (tiles.Handle, []tiles.Handle, error) {
	if depth > r.opts.MaxDepth {
		return tiles.Handle{}, nil, fmt.Errorf("%w: chain deeper than %d at %s", ErrMalformedBridge, r.opts.MaxDepth, conn)
	}
	if visited.Has(conn) {
		return tiles.Handle{}, nil, fmt.Errorf("%w: connector %s revisited", ErrMalformedBridge, conn)
	}
	visited.Put(conn)

	c, ok := r.connectors[conn]
	if !ok || !incoming.Valid() {
		return tiles.Handle{}, nil, nil
	}
	ct, ok := r.reg.Lookup(conn)
	if !ok {
		return tiles.Handle{}, nil, nil
	}
	_ = r.reg.SetWorkingOrientation(conn, incoming)
	exit := r.exitOrientation(c, incoming)

	center := ct.Position()
	near := r.reg.QueryRadius(center, r.opts.Radius, func(o *tiles.Tile) bool {
		h := o.Handle()
		if h == prev || h == origin || h == conn {
			return false
		}
		return aligned(c.Axis, center, o.Position(), r.opts.Tolerance)
	})

	for _, o := range near {
		if o.IsConnector() {
			if !r.IsConnector(o.Handle()) {
				continue
			}
			sib, chain, err := r.search(o.Handle(), conn, origin, exit, visited, depth+1)
			if err != nil {
				return tiles.Handle{}, nil, err
			}
			if !sib.IsZero() {
				return sib, append([]tiles.Handle{conn}, chain...), nil
			}
			continue
		}
		if o.Invalid() || o.Orientation() != exit {
			continue
		}
		return o.Handle(), []tiles.Handle{conn}, nil
	}
	return tiles.Handle{}, nil, nil
}

// exitOrientation carries the adopted orientation across the connector. If
// it matches one end the other end's orientation comes out; otherwise the
// connector is straight for this traveller.
func (r *Resolver) exitOrientation(c *Connector, adopted orientation.Orientation) orientation.Orientation {
	endA := r.reg.Classify(c.Ends[0])
	endB := r.reg.Classify(c.Ends[1])
	switch adopted {
	case endA:
		if endB.Valid() {
			return endB
		}
	case endB:
		if endA.Valid() {
			return endA
		}
	}
	return adopted
}

func aligned(axis, center, p mgl64.Vec3, tolerance float64) bool {
	rel := p.Sub(center)
	perp := rel.Sub(axis.Mul(rel.Dot(axis)))
	return perp.Len() <= tolerance
}

// Revalidate re-derives every splice of h. A splice survives when resolving
// from either end still yields the other; dropped splices are unlinked and
// the far end dirtied. The surviving far ends are returned in handle order.
func (r *Resolver) Revalidate(h tiles.Handle) []tiles.Handle {
	keys, ok := r.byTile[h]
	if !ok {
		return nil
	}
	var snapshot []*splice
	keys.Each(func(k spliceKey) {
		if s, ok := r.splices[k]; ok {
			snapshot = append(snapshot, s)
		}
	})

	var out []tiles.Handle
	for _, s := range snapshot {
		other := s.other(h)
		if r.stillValid(s) {
			_ = r.reg.LinkSiblings(s.a, s.b)
			out = append(out, other)
			continue
		}
		r.drop(s)
		r.reg.MarkDirty(other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (r *Resolver) stillValid(s *splice) bool {
	if len(s.chain) == 0 {
		return false
	}
	first, last := s.chain[0], s.chain[len(s.chain)-1]
	if sib, _, err := r.resolve(first, s.a); err == nil && sib == s.b {
		return true
	}
	if sib, _, err := r.resolve(last, s.b); err == nil && sib == s.a {
		return true
	}
	return false
}

// InvalidateConnector drops every splice routed through the connector,
// dirtying both endpoints and the tiles around the connector. It returns the
// number of splices dropped.
func (r *Resolver) InvalidateConnector(h tiles.Handle) int {
	var doomed []*splice
	for _, s := range r.splices {
		if s.routesThrough(h) {
			doomed = append(doomed, s)
		}
	}
	for _, s := range doomed {
		r.drop(s)
		r.reg.MarkDirty(s.a)
		r.reg.MarkDirty(s.b)
	}
	if t, ok := r.reg.Lookup(h); ok {
		r.dirtyAround(t.Position())
	}
	return len(doomed)
}

// ForgetTile drops every splice ending at h and dirties the far ends. Call it
// before destroying the tile.
func (r *Resolver) ForgetTile(h tiles.Handle) {
	keys, ok := r.byTile[h]
	if !ok {
		return
	}
	var doomed []*splice
	keys.Each(func(k spliceKey) {
		if s, ok := r.splices[k]; ok {
			doomed = append(doomed, s)
		}
	})
	for _, s := range doomed {
		r.drop(s)
		r.reg.MarkDirty(s.other(h))
	}
}

// Reset drops every splice and clears the working orientation of every
// connector. Used when gravity changes.
func (r *Resolver) Reset() {
	all := make([]*splice, 0, len(r.splices))
	for _, s := range r.splices {
		all = append(all, s)
	}
	for _, s := range all {
		r.drop(s)
		r.reg.MarkDirty(s.a)
		r.reg.MarkDirty(s.b)
	}
	for h := range r.connectors {
		_ = r.reg.SetWorkingOrientation(h, orientation.None)
	}
	r.logger.Debug("bridge splices reset", log.Int("dropped", len(all)))
}

// Splices returns every cached splice ordered by endpoints.
func (r *Resolver) Splices() []Splice {
	out := make([]Splice, 0, len(r.splices))
	for k, s := range r.splices {
		out = append(out, Splice{A: k.a, B: k.b, Chain: append([]tiles.Handle(nil), s.chain...)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A.Less(out[j].A)
		}
		return out[i].B.Less(out[j].B)
	})
	return out
}

func (r *Resolver) link(a, b tiles.Handle, chain []tiles.Handle) {
	k := keyOf(a, b)
	if s, ok := r.splices[k]; ok {
		s.a, s.b, s.chain = a, b, chain
	} else {
		r.splices[k] = &splice{a: a, b: b, chain: chain}
		r.index(a, k)
		r.index(b, k)
		r.logger.Debug("splice registered",
			log.Stringer("a", a),
			log.Stringer("b", b),
			log.Int("connectors", len(chain)),
		)
	}
	if err := r.reg.LinkSiblings(a, b); err != nil && !errors.Is(err, tiles.ErrStaleHandle) {
		r.logger.Warn("link siblings failed", log.Error(err))
	}
}

func (r *Resolver) drop(s *splice) {
	k := keyOf(s.a, s.b)
	delete(r.splices, k)
	r.unindex(s.a, k)
	r.unindex(s.b, k)
	r.reg.UnlinkSiblings(s.a, s.b)
}

func (r *Resolver) index(h tiles.Handle, k spliceKey) {
	set, ok := r.byTile[h]
	if !ok {
		set = mapset.New[spliceKey]()
		r.byTile[h] = set
	}
	set.Put(k)
}

func (r *Resolver) unindex(h tiles.Handle, k spliceKey) {
	set, ok := r.byTile[h]
	if !ok {
		return
	}
	set.Remove(k)
	if set.Size() == 0 {
		delete(r.byTile, h)
	}
}

func (r *Resolver) dirtyAround(center mgl64.Vec3) {
	for _, t := range r.reg.QueryRadius(center, r.opts.Radius, func(t *tiles.Tile) bool { return !t.IsConnector() }) {
		r.reg.MarkDirty(t.Handle())
	}
}
