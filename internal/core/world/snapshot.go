package world

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/zeusync/cubenav/internal/core/bridge"
	"github.com/zeusync/cubenav/internal/core/obstruction"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zeusync/cubenav/pkg/sequence"
)

// TileView is a read-only copy of one tile.
type TileView struct {
	Handle      tiles.Handle            `json:"handle"`
	Position    [3]float64              `json:"position"`
	Orientation orientation.Orientation `json:"orientation"`
	Type        tiles.TraversalType     `json:"type"`
	Kind        string                  `json:"kind"`
	Group       tiles.GroupID           `json:"group,omitempty"`
	Glue        bool                    `json:"glue,omitempty"`
	Dirty       bool                    `json:"dirty,omitempty"`
	Obstructed  bool                    `json:"obstructed,omitempty"`
	Degree      int                     `json:"degree"`
	Connections []tiles.Handle          `json:"connections"`
	Siblings    []tiles.Handle          `json:"siblings,omitempty"`
}

// Snapshot is a JSON-friendly copy of the whole graph.
type Snapshot struct {
	Tick         uint64                  `json:"tick"`
	Gravity      orientation.Orientation `json:"gravity"`
	Digest       uint64                  `json:"digest"`
	Dirty        int                     `json:"dirty"`
	Tiles        []TileView              `json:"tiles"`
	Splices      []bridge.Splice         `json:"splices"`
	Obstructions []obstruction.SourceID  `json:"obstructions"`
}

// Tile returns a copy of one tile.
func (w *World) Tile(h tiles.Handle) (TileView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.reg.Lookup(h)
	if !ok {
		return TileView{}, false
	}
	return w.view(t), true
}

// Snapshot copies the current graph.
func (w *World) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	views := sequence.ToArray(sequence.From(w.reg.Handles()), func(h tiles.Handle) TileView {
		t, _ := w.reg.Lookup(h)
		return w.view(t)
	})
	return Snapshot{
		Tick:         w.ticks,
		Gravity:      w.gravity,
		Digest:       w.digest(),
		Dirty:        w.reg.DirtyCount(),
		Tiles:        views,
		Splices:      w.bridges.Splices(),
		Obstructions: w.obstructions.Active(),
	}
}

func (w *World) view(t *tiles.Tile) TileView {
	p := t.Position()
	return TileView{
		Handle:      t.Handle(),
		Position:    [3]float64{p[0], p[1], p[2]},
		Orientation: t.Orientation(),
		Type:        t.Type(),
		Kind:        t.Kind().String(),
		Group:       t.Group(),
		Glue:        t.Glue(),
		Dirty:       t.Dirty(),
		Obstructed:  w.obstructions.Obstructed(t.Handle()),
		Degree:      t.Degree(),
		Connections: t.Connections(),
		Siblings:    t.Siblings(),
	}
}

// Digest hashes the graph topology: every live tile with its orientation,
// type and sorted adjacency. Equal graphs hash equal regardless of the order
// they were built in, as long as handles match.
func (w *World) Digest() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.digest()
}

func (w *World) digest() uint64 {
	d := xxhash.New()
	var buf []byte
	for _, h := range w.reg.Handles() {
		t, _ := w.reg.Lookup(h)
		buf = buf[:0]
		buf = appendHandle(buf, h)
		buf = append(buf, byte(t.Orientation()), byte(t.Type()), byte(t.Kind()))
		for _, c := range t.Position() {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c))
		}
		conns := t.Connections()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(conns)))
		for _, c := range conns {
			buf = appendHandle(buf, c)
		}
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

func appendHandle(buf []byte, h tiles.Handle) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, h.Index())
	return binary.LittleEndian.AppendUint32(buf, h.Generation())
}
