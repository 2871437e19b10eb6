package connectivity

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
)

const radius = 10.5

func settle(t *testing.T, s *Scanner, reg *tiles.Registry) int {
	t.Helper()
	for i := 1; i <= 50; i++ {
		s.Tick()
		if reg.DirtyCount() == 0 {
			return i
		}
	}
	t.Fatalf("no convergence, %d dirty", reg.DirtyCount())
	return 0
}

func lookup(reg *tiles.Registry, h tiles.Handle) *tiles.Tile {
	t, _ := reg.Lookup(h)
	return t
}

func TestEndToEndLinkThenInvalidate(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	a := reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Up)
	b := reg.CreateTile(mgl64.Vec3{10, 0, 0}, orientation.Up)

	_, _, ok := s.Scan(a)
	require.True(t, ok)
	_, _, ok = s.Scan(b)
	require.True(t, ok)
	assert.Equal(t, []tiles.Handle{b}, lookup(reg, a).Connections())
	assert.Equal(t, []tiles.Handle{a}, lookup(reg, b).Connections())

	require.NoError(t, reg.SetType(b, tiles.Invalid))
	s.Scan(a)
	s.Scan(b)
	assert.Empty(t, lookup(reg, a).Connections())
	assert.Empty(t, lookup(reg, b).Connections())
}

func TestTickReportsStats(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Down)
	reg.CreateTile(mgl64.Vec3{10, 0, 0}, orientation.Down)

	stats := s.Tick()
	assert.Equal(t, 2, stats.Scanned)
	// a's scan already wrote the far side, so b's own scan finds nothing new
	assert.Equal(t, 1, stats.Added)
	assert.Zero(t, stats.Removed)
	assert.Zero(t, stats.Pending)

	stats = s.Tick()
	assert.Equal(t, TickStats{}, stats)
}

func TestOneSidedScanConverges(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	a := reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Down)
	b := reg.CreateTile(mgl64.Vec3{10, 0, 0}, orientation.Down)
	settle(t, s, reg)

	// move b out of range
	require.NoError(t, reg.SetTransform(b, mgl64.Vec3{30, 0, 0}, orientation.Down.GravityVector()))
	settle(t, s, reg)
	assert.Empty(t, lookup(reg, a).Connections())
	assert.Empty(t, lookup(reg, b).Connections())
}

func TestSymmetryAndOrientationFilterUnderPerturbation(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	rng := rand.New(rand.NewSource(7))
	dirs := orientation.All()

	var hs []tiles.Handle
	for x := 0; x < 6; x++ {
		for z := 0; z < 6; z++ {
			o := dirs[rng.Intn(2)]
			hs = append(hs, reg.CreateTile(mgl64.Vec3{float64(x) * 10, 0, float64(z) * 10}, o, tiles.WithGroup(tiles.GroupID(rng.Intn(4)))))
		}
	}
	settle(t, s, reg)
	assertConsistent(t, reg, hs)

	for round := 0; round < 5; round++ {
		for i := 0; i < 6; i++ {
			h := hs[rng.Intn(len(hs))]
			switch rng.Intn(3) {
			case 0:
				_ = reg.SetType(h, tiles.TraversalType(rng.Intn(4)))
			case 1:
				tile := lookup(reg, h)
				_ = reg.SetTransform(h, tile.Position().Add(mgl64.Vec3{rng.Float64()*8 - 4, 0, rng.Float64()*8 - 4}), tile.Down())
			case 2:
				_ = reg.SetTransform(h, lookup(reg, h).Position(), dirs[rng.Intn(len(dirs))].GravityVector())
			}
		}
		settle(t, s, reg)
		assertConsistent(t, reg, hs)
	}
}

func assertConsistent(t *testing.T, reg *tiles.Registry, hs []tiles.Handle) {
	t.Helper()
	for _, h := range hs {
		a := lookup(reg, h)
		for _, n := range a.Connections() {
			b := lookup(reg, n)
			require.NotNil(t, b)
			assert.True(t, b.Adjacent(h), "%s -> %s is one-sided", h, n)
			assert.Equal(t, a.Orientation(), b.Orientation(), "%s -> %s crosses orientations", h, n)
			assert.False(t, a.Invalid() || b.Invalid(), "%s -> %s touches an invalid tile", h, n)
			assert.False(t, tiles.Excludes(a, b), "%s -> %s links inside one group", h, n)
			assert.LessOrEqual(t, a.Position().Sub(b.Position()).Len(), radius)
		}
	}
}

func TestInvalidIsolation(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	center := reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Down)
	var ring []tiles.Handle
	for _, p := range []mgl64.Vec3{{10, 0, 0}, {-10, 0, 0}, {0, 0, 10}, {0, 0, -10}} {
		ring = append(ring, reg.CreateTile(p, orientation.Down))
	}
	settle(t, s, reg)
	require.Len(t, lookup(reg, center).Connections(), 4)

	require.NoError(t, reg.SetType(center, tiles.Invalid))
	s.Tick()
	assert.Empty(t, lookup(reg, center).Connections())
	for _, h := range ring {
		assert.False(t, lookup(reg, h).Adjacent(center))
	}
}

func TestIsolatedTileHasNoEdges(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	a := reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Down)
	reg.CreateTile(mgl64.Vec3{50, 0, 0}, orientation.Down)
	unclassified := reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.None)

	settle(t, s, reg)
	assert.Empty(t, lookup(reg, a).Connections())
	assert.Empty(t, lookup(reg, unclassified).Connections())
	assert.False(t, lookup(reg, a).Dirty())

	_, _, ok := s.Scan(tiles.Handle{})
	assert.False(t, ok)
}

func TestGroupExclusionAndGlue(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	s := NewScanner(reg, nil, radius, nil)
	a := reg.CreateTile(mgl64.Vec3{0, 0, 0}, orientation.Down, tiles.WithGroup(1))
	b := reg.CreateTile(mgl64.Vec3{10, 0, 0}, orientation.Down, tiles.WithGroup(1))
	g := reg.CreateTile(mgl64.Vec3{0, 0, 10}, orientation.Down, tiles.WithGroup(1), tiles.WithGlue())

	settle(t, s, reg)
	assert.Equal(t, []tiles.Handle{g}, lookup(reg, a).Connections())
	assert.Empty(t, lookup(reg, b).Connections(), "b is 14 units from g and shares a group with a")
	assert.Equal(t, []tiles.Handle{a}, lookup(reg, g).Connections())
}

type fakeBridges struct {
	connector   tiles.Handle
	sibling     map[tiles.Handle]tiles.Handle
	invalidated int
}

func (f *fakeBridges) IsConnector(h tiles.Handle) bool { return h == f.connector }

func (f *fakeBridges) FindSibling(connector, from tiles.Handle) (tiles.Handle, bool) {
	sib, ok := f.sibling[from]
	return sib, ok && connector == f.connector
}

func (f *fakeBridges) Revalidate(h tiles.Handle) []tiles.Handle {
	if sib, ok := f.sibling[h]; ok {
		return []tiles.Handle{sib}
	}
	return nil
}

func (f *fakeBridges) InvalidateConnector(tiles.Handle) int {
	f.invalidated++
	return 0
}

func TestConnectorCandidatesDelegateToBridges(t *testing.T) {
	reg := tiles.NewRegistry(radius, 10, nil)
	fb := &fakeBridges{sibling: map[tiles.Handle]tiles.Handle{}}
	s := NewScanner(reg, fb, radius, nil)

	a := reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Front)
	fb.connector = reg.CreateTile(mgl64.Vec3{}, orientation.None, tiles.WithKind(tiles.KindConnector))
	fb.sibling[a] = b
	fb.sibling[b] = a

	settle(t, s, reg)
	assert.Equal(t, []tiles.Handle{b}, lookup(reg, a).Connections())
	assert.Equal(t, []tiles.Handle{a}, lookup(reg, b).Connections())
	assert.Empty(t, lookup(reg, fb.connector).Connections())
	assert.Equal(t, 1, fb.invalidated)
}
