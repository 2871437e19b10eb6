package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/obstruction"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zeusync/cubenav/pkg/sequence"
)

// coincident is how close two face centres must be to count as touching.
const coincident = 1e-3

type cube struct {
	center mgl64.Vec3
	ttype  tiles.TraversalType
}

// CubeOptions configures AddCube.
type CubeOptions struct {
	// Type is given to every exposed face. Zero means Valid.
	Type tiles.TraversalType
	// Glue lets the faces link to each other across cube edges.
	Glue bool
}

// AddCube creates a grid-sized cube centred at center with one tile per face
// and returns its group. Faces that touch a face of another cube are buried
// on both sides and stay Invalid while both cubes exist.
func (w *World) AddCube(center mgl64.Vec3, opts CubeOptions) tiles.GroupID {
	if opts.Type == tiles.Invalid {
		opts.Type = tiles.Valid
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextGroup++
	g := w.nextGroup
	w.cubes[g] = &cube{center: center, ttype: opts.Type}

	half := w.cfg.Graph.GridSize / 2
	faceOpts := []tiles.TileOption{tiles.WithGroup(g), tiles.WithType(tiles.NoMesh)}
	if opts.Glue {
		faceOpts = append(faceOpts, tiles.WithGlue())
	}
	var faces []tiles.Handle
	for _, down := range orientation.All() {
		normal := down.Opposite().GravityVector()
		faces = append(faces, w.reg.CreateTile(center.Add(normal.Mul(half)), down, faceOpts...))
	}

	for _, h := range faces {
		t, _ := w.reg.Lookup(h)
		touching := w.touching(t.Position(), g)
		if len(touching) == 0 {
			_ = w.reg.SetType(h, opts.Type)
			continue
		}
		_ = w.reg.SetType(h, tiles.Invalid)
		for _, o := range touching {
			if !w.obstructions.SetPrior(o, tiles.Invalid) {
				_ = w.reg.SetType(o, tiles.Invalid)
			}
		}
	}

	w.logger.Debug("cube added", log.Uint32("group", uint32(g)), log.Int("faces", len(faces)))
	return g
}

// RemoveCube destroys a cube's faces and unburies the faces of neighbouring
// cubes it was touching.
func (w *World) RemoveCube(g tiles.GroupID) error {
	w.mu.Lock()
	if _, ok := w.cubes[g]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownGroup, g)
	}

	var unbury []tiles.Handle
	for _, h := range w.reg.Group(g) {
		t, _ := w.reg.Lookup(h)
		unbury = append(unbury, w.touching(t.Position(), g)...)
	}
	var destroyed []tiles.Handle
	for _, h := range w.reg.Group(g) {
		if _, err := w.destroyTile(h); err == nil {
			destroyed = append(destroyed, h)
		}
	}
	delete(w.cubes, g)

	for _, h := range unbury {
		t, ok := w.reg.Lookup(h)
		if !ok || len(w.touching(t.Position(), t.Group())) > 0 {
			continue
		}
		restore := tiles.Valid
		if c, ok := w.cubes[t.Group()]; ok {
			restore = c.ttype
		}
		if !w.obstructions.SetPrior(h, restore) {
			_ = w.reg.SetType(h, restore)
		}
	}
	w.mu.Unlock()

	for _, h := range destroyed {
		w.publishDestroyed(h, g)
	}
	return nil
}

// touching returns the surface tiles of other groups whose centre coincides
// with p.
func (w *World) touching(p mgl64.Vec3, self tiles.GroupID) []tiles.Handle {
	hits := w.reg.QueryRadius(p, coincident, func(t *tiles.Tile) bool {
		return !t.IsConnector() && (t.Group() == 0 || t.Group() != self)
	})
	return sequence.ToArray(sequence.From(hits), (*tiles.Tile).Handle)
}

// MoveGroup translates every tile of a group, as a platform step does.
func (w *World) MoveGroup(g tiles.GroupID, delta mgl64.Vec3) error {
	return w.transformGroup(g, func(p, d mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
		return p.Add(delta), d
	}, nil)
}

// RotateGroup rotates every tile of a group around pivot. Tile down axes and
// connector axes rotate with it.
func (w *World) RotateGroup(g tiles.GroupID, pivot mgl64.Vec3, q mgl64.Quat) error {
	rotate := func(v mgl64.Vec3) mgl64.Vec3 { return q.Rotate(v) }
	return w.transformGroup(g, func(p, d mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
		return pivot.Add(q.Rotate(p.Sub(pivot))), q.Rotate(d)
	}, rotate)
}

// SnapGroup rounds positions to the half-cell lattice and down axes to the
// nearest world axis, as a finished rotation does.
func (w *World) SnapGroup(g tiles.GroupID) error {
	step := w.cfg.Graph.GridSize / 2
	snap := func(v mgl64.Vec3) mgl64.Vec3 {
		if o := orientation.FromDownVector(v); o.Valid() {
			return o.GravityVector()
		}
		return v
	}
	return w.transformGroup(g, func(p, d mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
		for i := range p {
			p[i] = math.Round(p[i]/step) * step
		}
		return p, snap(d)
	}, snap)
}

// transformGroup applies fn to every tile of the group. axisFn, when set, is
// applied to connector axes and end down axes as well.
func (w *World) transformGroup(g tiles.GroupID, fn func(p, d mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3), axisFn func(mgl64.Vec3) mgl64.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hs := w.reg.Group(g)
	if len(hs) == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, g)
	}
	for _, h := range hs {
		t, ok := w.reg.Lookup(h)
		if !ok {
			continue
		}
		p, d := fn(t.Position(), t.Down())
		if err := w.reg.SetTransform(h, p, d); err != nil {
			return err
		}
		if axisFn == nil {
			continue
		}
		if c, ok := w.bridges.Connector(h); ok {
			if err := w.bridges.SetAxis(h, axisFn(c.Axis)); err != nil {
				return err
			}
			if err := w.bridges.SetEnds(h, axisFn(c.Ends[0]), axisFn(c.Ends[1])); err != nil {
				return err
			}
		}
	}
	if c, ok := w.cubes[g]; ok {
		c.center, _ = fn(c.center, mgl64.Vec3{})
	}
	return nil
}

// MarkGroupDirty queues every tile of a group for a rescan, as a platform
// motion phase change does. It returns the number of tiles queued.
func (w *World) MarkGroupDirty(g tiles.GroupID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sequence.From(w.reg.Group(g)).Filter(w.reg.MarkDirty).Count()
}

// Group returns the live tiles of a group.
func (w *World) Group(g tiles.GroupID) []tiles.Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reg.Group(g)
}

// NewSourceID returns a fresh obstruction source id.
func NewSourceID() obstruction.SourceID {
	return obstruction.SourceID(uuid.NewString())
}
