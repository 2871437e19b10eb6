package obstruction

import (
	"fmt"
	"maps"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zeusync/cubenav/pkg/sequence"
	"github.com/zyedidia/generic/mapset"
)

// SourceID identifies one obstructing body.
type SourceID string

// Body is a foreign rigid body (a falling cube) at rest.
type Body struct {
	Source      SourceID
	Center      mgl64.Vec3
	HalfExtents mgl64.Vec3
	// Group is the body's own tile group; its faces are never probed.
	Group tiles.GroupID
}

// Options tunes the directional probes.
type Options struct {
	// Margin is added to the half extent on each probe axis.
	Margin float64
	// HitRadius is how far off the probe ray a tile centre may lie.
	HitRadius float64
}

type record struct {
	body  Body
	tiles mapset.Set[tiles.Handle]
}

// Tracker demotes tiles covered by obstructing bodies to Invalid and restores
// them once no body holds them any more.
type Tracker struct {
	reg     *tiles.Registry
	opts    Options
	holders map[tiles.Handle]mapset.Set[SourceID]
	prior   map[tiles.Handle]tiles.TraversalType
	records map[SourceID]*record
	logger  log.Log
}

func NewTracker(reg *tiles.Registry, opts Options, logger log.Log) *Tracker {
	return &Tracker{
		reg:     reg,
		opts:    opts,
		holders: make(map[tiles.Handle]mapset.Set[SourceID]),
		prior:   make(map[tiles.Handle]tiles.TraversalType),
		records: make(map[SourceID]*record),
		logger:  log.OrNop(logger).With(log.String("component", "obstruction")),
	}
}

// Begin probes around the body and demotes every tile hit. Calling it again
// for an active source behaves like Update. It returns the tiles the source
// now holds.
func (t *Tracker) Begin(b Body) ([]tiles.Handle, error) {
	if b.Source == "" {
		return nil, ErrEmptySource
	}
	if _, ok := t.records[b.Source]; ok {
		return t.Update(b)
	}

	rec := &record{body: b, tiles: mapset.New[tiles.Handle]()}
	t.records[b.Source] = rec
	for _, h := range t.probe(b) {
		t.acquire(rec, h)
	}

	held := sorted(rec.tiles)
	t.logger.Debug("obstruction began",
		log.String("source", string(b.Source)),
		log.Int("tiles", len(held)),
	)
	return held, nil
}

// Update re-probes a moved or resized body, releasing tiles it no longer
// covers and demoting new ones.
func (t *Tracker) Update(b Body) ([]tiles.Handle, error) {
	rec, ok := t.records[b.Source]
	if !ok {
		return t.Begin(b)
	}
	rec.body = b

	hits := mapset.New[tiles.Handle]()
	for _, h := range t.probe(b) {
		hits.Put(h)
	}
	var gone []tiles.Handle
	rec.tiles.Each(func(h tiles.Handle) {
		if !hits.Has(h) {
			gone = append(gone, h)
		}
	})
	for _, h := range gone {
		t.release(rec, h)
	}
	hits.Each(func(h tiles.Handle) {
		if !rec.tiles.Has(h) {
			t.acquire(rec, h)
		}
	})
	return sorted(rec.tiles), nil
}

// End releases every tile held by source. Tiles whose holder set becomes
// empty get their prior type back; those are returned.
func (t *Tracker) End(source SourceID) ([]tiles.Handle, error) {
	rec, ok := t.records[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	var restored []tiles.Handle
	for _, h := range sorted(rec.tiles) {
		if t.release(rec, h) {
			restored = append(restored, h)
		}
	}
	delete(t.records, source)

	t.logger.Debug("obstruction ended",
		log.String("source", string(source)),
		log.Int("restored", len(restored)),
	)
	return restored, nil
}

// Obstructed reports whether any source currently holds h.
func (t *Tracker) Obstructed(h tiles.Handle) bool {
	_, ok := t.holders[h]
	return ok
}

// Holders lists the sources holding h in lexical order.
func (t *Tracker) Holders(h tiles.Handle) []SourceID {
	set, ok := t.holders[h]
	if !ok {
		return nil
	}
	out := make([]SourceID, 0, set.Size())
	set.Each(func(s SourceID) { out = append(out, s) })
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Active lists every source with a live record.
func (t *Tracker) Active() []SourceID {
	return sequence.FromSeq(maps.Keys(t.records)).
		Sort(func(a, b SourceID) bool { return a < b }).
		Collect()
}

// Body returns the last probed body of an active source.
func (t *Tracker) Body(source SourceID) (Body, bool) {
	rec, ok := t.records[source]
	if !ok {
		return Body{}, false
	}
	return rec.body, true
}

// SetPrior replaces the type a held tile will be restored to. It reports
// false when no source holds h.
func (t *Tracker) SetPrior(h tiles.Handle, tt tiles.TraversalType) bool {
	if _, ok := t.holders[h]; !ok {
		return false
	}
	t.prior[h] = tt
	return true
}

// ForgetTile drops all bookkeeping for a tile that is about to be destroyed.
func (t *Tracker) ForgetTile(h tiles.Handle) {
	delete(t.holders, h)
	delete(t.prior, h)
	for _, rec := range t.records {
		rec.tiles.Remove(h)
	}
}

func (t *Tracker) acquire(rec *record, h tiles.Handle) {
	tile, ok := t.reg.Lookup(h)
	if !ok {
		return
	}
	set, held := t.holders[h]
	if !held {
		set = mapset.New[SourceID]()
		t.holders[h] = set
		t.prior[h] = tile.Type()
	}
	set.Put(rec.body.Source)
	rec.tiles.Put(h)

	if err := t.reg.SetType(h, tiles.Invalid); err != nil {
		t.logger.Warn("demote tile", log.Stringer("tile", h), log.Error(err))
	}
	t.reg.MarkDirty(h)
}

// release drops the source's hold on h and reports whether the tile was
// restored.
func (t *Tracker) release(rec *record, h tiles.Handle) bool {
	rec.tiles.Remove(h)
	set, ok := t.holders[h]
	if !ok {
		return false
	}
	set.Remove(rec.body.Source)
	if set.Size() > 0 {
		return false
	}
	delete(t.holders, h)
	prev := t.prior[h]
	delete(t.prior, h)

	if err := t.reg.SetType(h, prev); err != nil {
		t.logger.Debug("restore skipped", log.Stringer("tile", h), log.Error(err))
		return false
	}
	t.reg.MarkDirty(h)
	return true
}

// probe casts one ray per axis direction from the body centre and returns
// the first foreign tile each one hits.
func (t *Tracker) probe(b Body) []tiles.Handle {
	seen := mapset.New[tiles.Handle]()
	var out []tiles.Handle
	for _, o := range orientation.All() {
		dir := o.GravityVector()
		reach := math.Abs(b.HalfExtents.Dot(dir)) + t.opts.Margin
		hit, _, ok := t.reg.Raycast(b.Center, dir, reach, t.opts.HitRadius, func(tile *tiles.Tile) bool {
			if tile.IsConnector() {
				return false
			}
			return b.Group == 0 || tile.Group() != b.Group
		})
		if ok && !seen.Has(hit.Handle()) {
			seen.Put(hit.Handle())
			out = append(out, hit.Handle())
		}
	}
	return out
}

func sorted(s mapset.Set[tiles.Handle]) []tiles.Handle {
	out := make([]tiles.Handle, 0, s.Size())
	s.Each(func(h tiles.Handle) { out = append(out, h) })
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
