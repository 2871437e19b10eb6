package tiles

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zyedidia/generic/mapset"
)

// TraversalType says whether and how an actor may stand on a tile.
type TraversalType uint8

const (
	Invalid TraversalType = iota
	Valid
	Exit
	Spikes
	// NoMesh marks a face that has no tile geometry yet. It only exists while a
	// cube is being assembled.
	NoMesh
)

func (t TraversalType) Walkable() bool {
	return t == Valid || t == Exit || t == Spikes
}

func (t TraversalType) String() string {
	switch t {
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	case Exit:
		return "exit"
	case Spikes:
		return "spikes"
	case NoMesh:
		return "none"
	}
	return "unknown"
}

func (t TraversalType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TraversalType) UnmarshalText(text []byte) error {
	for c := Invalid; c <= NoMesh; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, text)
}

// Kind separates ordinary surface tiles from the tiles owned by bridge
// connectors.
type Kind uint8

const (
	KindSurface Kind = iota
	KindConnector
)

func (k Kind) String() string {
	if k == KindConnector {
		return "connector"
	}
	return "surface"
}

// GroupID names the cube or platform that owns a tile. Zero means no owner.
type GroupID uint32

// Tile is a node of the walkable-surface graph. All mutation goes through the
// Registry; the accessors are safe to call from read-only phases.
type Tile struct {
	handle      Handle
	position    mgl64.Vec3
	down        mgl64.Vec3
	orientation orientation.Orientation
	ttype       TraversalType
	glue        bool
	dirty       bool
	group       GroupID
	kind        Kind
	adjacency   mapset.Set[Handle]
	siblings    mapset.Set[Handle]
	cell        cellKey
}

func (t *Tile) Handle() Handle                       { return t.handle }
func (t *Tile) Key() Handle                          { return t.handle }
func (t *Tile) Position() mgl64.Vec3                 { return t.position }
func (t *Tile) Down() mgl64.Vec3                     { return t.down }
func (t *Tile) Orientation() orientation.Orientation { return t.orientation }
func (t *Tile) Type() TraversalType                  { return t.ttype }
func (t *Tile) Glue() bool                           { return t.glue }
func (t *Tile) Dirty() bool                          { return t.dirty }
func (t *Tile) Group() GroupID                       { return t.group }
func (t *Tile) Kind() Kind                           { return t.kind }
func (t *Tile) IsConnector() bool                    { return t.kind == KindConnector }

// Invalid reports whether the tile cannot be stood on. Connector backing
// tiles are never path nodes.
func (t *Tile) Invalid() bool {
	return t.kind == KindConnector || !t.ttype.Walkable()
}

// Connections returns the adjacency set, splice edges included, in handle
// order.
func (t *Tile) Connections() []Handle {
	return sortedHandles(t.adjacency)
}

// Degree is the number of edges, splices included.
func (t *Tile) Degree() int {
	return t.adjacency.Size()
}

func (t *Tile) Adjacent(h Handle) bool {
	return t.adjacency.Has(h)
}

// Siblings returns the far ends of bridge splices registered on this tile.
func (t *Tile) Siblings() []Handle {
	return sortedHandles(t.siblings)
}

func (t *Tile) IsSibling(h Handle) bool {
	return t.siblings.Has(h)
}

// Excludes reports whether a and b belong to the same owner and so must not
// link directly. Glue tiles link across their own group.
func Excludes(a, b *Tile) bool {
	if a.glue || b.glue {
		return false
	}
	return a.group != 0 && a.group == b.group
}

func sortedHandles(s mapset.Set[Handle]) []Handle {
	out := make([]Handle, 0, s.Size())
	s.Each(func(h Handle) {
		out = append(out, h)
	})
	sortHandles(out)
	return out
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}
