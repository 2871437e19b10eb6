package tiles

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zyedidia/generic/mapset"
)

// cellKey addresses one cell of the uniform grid.
type cellKey struct {
	x, y, z int
}

// spatialGrid buckets tile handles into cubic cells so radius and ray queries
// only touch nearby cells.
type spatialGrid struct {
	cellSize float64
	cells    map[cellKey]mapset.Set[Handle]
}

func newSpatialGrid(cellSize float64) *spatialGrid {
	if cellSize <= 0 {
		cellSize = 10
	}
	return &spatialGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey]mapset.Set[Handle]),
	}
}

func (g *spatialGrid) keyFor(p mgl64.Vec3) cellKey {
	return cellKey{
		x: int(math.Floor(p[0] / g.cellSize)),
		y: int(math.Floor(p[1] / g.cellSize)),
		z: int(math.Floor(p[2] / g.cellSize)),
	}
}

func (g *spatialGrid) insert(h Handle, key cellKey) {
	cell, ok := g.cells[key]
	if !ok {
		cell = mapset.New[Handle]()
		g.cells[key] = cell
	}
	cell.Put(h)
}

func (g *spatialGrid) remove(h Handle, key cellKey) {
	cell, ok := g.cells[key]
	if !ok {
		return
	}
	cell.Remove(h)
	if cell.Size() == 0 {
		delete(g.cells, key)
	}
}

// cellsInBox returns the number of cells covering the box and calls fn for
// every populated one. fn is not called when the count exceeds limit.
func (g *spatialGrid) cellsInBox(bmin, bmax mgl64.Vec3, limit int, fn func(mapset.Set[Handle])) int {
	lo, hi := g.keyFor(bmin), g.keyFor(bmax)
	count := (hi.x - lo.x + 1) * (hi.y - lo.y + 1) * (hi.z - lo.z + 1)
	if limit > 0 && count > limit {
		return count
	}
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				if cell, ok := g.cells[cellKey{x, y, z}]; ok {
					fn(cell)
				}
			}
		}
	}
	return count
}

// rayDistance projects p onto the ray and returns the distance along it and
// the perpendicular distance from it. dir must be normalised.
func rayDistance(origin, dir, p mgl64.Vec3) (along, perp float64) {
	rel := p.Sub(origin)
	along = rel.Dot(dir)
	perp = rel.Sub(dir.Mul(along)).Len()
	return along, perp
}
