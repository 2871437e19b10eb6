package bridge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/cubenav/internal/core/connectivity"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
)

var (
	down  = orientation.Down.GravityVector()
	left  = orientation.Left.GravityVector()
	xAxis = mgl64.Vec3{1, 0, 0}
)

type fixture struct {
	reg     *tiles.Registry
	res     *Resolver
	scanner *connectivity.Scanner
}

func newFixture(radius, tolerance float64, depth int) *fixture {
	reg := tiles.NewRegistry(radius, 10, nil)
	res := NewResolver(reg, Options{Radius: radius, Tolerance: tolerance, MaxDepth: depth}, nil)
	return &fixture{reg: reg, res: res, scanner: connectivity.NewScanner(reg, res, radius, nil)}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 20; i++ {
		f.scanner.Tick()
		if f.reg.DirtyCount() == 0 {
			return
		}
	}
	t.Fatalf("graph did not settle, %d tiles still dirty", f.reg.DirtyCount())
}

func (f *fixture) tile(h tiles.Handle) *tiles.Tile {
	t, _ := f.reg.Lookup(h)
	return t
}

func TestSpliceAcrossOrientations(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)
	c, err := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, left)
	require.NoError(t, err)

	f.settle(t)

	assert.Equal(t, []tiles.Handle{b}, f.tile(a).Connections())
	assert.Equal(t, []tiles.Handle{a}, f.tile(b).Connections())
	assert.True(t, f.tile(a).IsSibling(b))
	assert.True(t, f.tile(b).IsSibling(a))
	assert.Empty(t, f.tile(c).Connections(), "connector tiles carry no adjacency")

	splices := f.res.Splices()
	require.Len(t, splices, 1)
	assert.Equal(t, []tiles.Handle{c}, splices[0].Chain)
}

func TestStraightConnectorRequiresMatchingOrientation(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)
	_, err := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, down)
	require.NoError(t, err)

	f.settle(t)
	assert.Empty(t, f.tile(a).Connections())
	assert.Empty(t, f.tile(b).Connections())
}

func TestMisalignedCandidateIsRejected(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{4, 0, 5}, orientation.Left)
	c, err := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, left)
	require.NoError(t, err)

	_, ok := f.res.FindSibling(c, a)
	assert.False(t, ok)
	assert.Empty(t, f.tile(b).Siblings())
}

func TestConnectorChain(t *testing.T) {
	f := newFixture(5.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	c1, _ := f.res.AddConnector(mgl64.Vec3{0, 0, 0}, xAxis, down, down)
	c2, _ := f.res.AddConnector(mgl64.Vec3{5, 0, 0}, xAxis, down, down)
	c3, _ := f.res.AddConnector(mgl64.Vec3{10, 0, 0}, xAxis, down, down)
	b := f.reg.CreateTile(mgl64.Vec3{15, 0, 0}, orientation.Down)

	sib, ok := f.res.FindSibling(c1, a)
	require.True(t, ok)
	assert.Equal(t, b, sib)

	splices := f.res.Splices()
	require.Len(t, splices, 1)
	assert.Equal(t, []tiles.Handle{c1, c2, c3}, splices[0].Chain)

	f.settle(t)
	assert.Equal(t, []tiles.Handle{b}, f.tile(a).Connections())
	assert.Equal(t, []tiles.Handle{a}, f.tile(b).Connections())
}

func TestChainDeeperThanLimitIsMalformed(t *testing.T) {
	f := newFixture(5.5, 1, 2)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	c1, _ := f.res.AddConnector(mgl64.Vec3{0, 0, 0}, xAxis, down, down)
	f.res.AddConnector(mgl64.Vec3{5, 0, 0}, xAxis, down, down)
	f.res.AddConnector(mgl64.Vec3{10, 0, 0}, xAxis, down, down)
	f.reg.CreateTile(mgl64.Vec3{15, 0, 0}, orientation.Down)

	_, _, err := f.res.resolve(c1, a)
	assert.ErrorIs(t, err, ErrMalformedBridge)

	_, ok := f.res.FindSibling(c1, a)
	assert.False(t, ok)
	assert.Empty(t, f.res.Splices())
}

func TestConnectorCycleAborts(t *testing.T) {
	// a wide tolerance makes every connector see the other two
	f := newFixture(10.5, 100, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	c1, _ := f.res.AddConnector(mgl64.Vec3{0, 0, 0}, xAxis, down, down)
	f.res.AddConnector(mgl64.Vec3{5, 0, 0}, xAxis, down, down)
	f.res.AddConnector(mgl64.Vec3{2.5, 0, 4}, xAxis, down, down)

	_, _, err := f.res.resolve(c1, a)
	require.ErrorIs(t, err, ErrMalformedBridge)

	// the scanner survives the loop and leaves the tile isolated
	f.settle(t)
	assert.Empty(t, f.tile(a).Connections())
}

func TestRevalidateDropsBrokenSplice(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)
	_, err := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, left)
	require.NoError(t, err)
	f.settle(t)
	require.Equal(t, []tiles.Handle{b}, f.res.Revalidate(a))

	require.NoError(t, f.reg.SetType(b, tiles.Invalid))
	assert.Empty(t, f.res.Revalidate(a))
	assert.Empty(t, f.res.Splices())

	f.settle(t)
	assert.Empty(t, f.tile(a).Connections())
	assert.Empty(t, f.tile(b).Connections())

	require.NoError(t, f.reg.SetType(b, tiles.Valid))
	f.settle(t)
	assert.Equal(t, []tiles.Handle{b}, f.tile(a).Connections())
}

func TestRemoveConnectorUnlinks(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)
	c, err := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, left)
	require.NoError(t, err)
	f.settle(t)

	require.NoError(t, f.res.RemoveConnector(c))
	assert.False(t, f.reg.Alive(c))
	assert.ErrorIs(t, f.res.RemoveConnector(c), ErrUnknownConnector)

	f.settle(t)
	assert.Empty(t, f.tile(a).Connections())
	assert.Empty(t, f.tile(b).Connections())
	assert.Empty(t, f.tile(a).Siblings())
}

func TestForgetTileAndReset(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	a := f.reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Down)
	b := f.reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)
	c, _ := f.res.AddConnector(mgl64.Vec3{}, xAxis, down, left)
	f.settle(t)

	f.res.ForgetTile(b)
	assert.Empty(t, f.res.Splices())
	assert.Empty(t, f.tile(a).Siblings())
	assert.True(t, f.tile(a).Dirty())

	f.settle(t)
	require.Len(t, f.res.Splices(), 1)

	f.res.Reset()
	assert.Empty(t, f.res.Splices())
	assert.Equal(t, orientation.None, f.tile(c).Orientation())
}

func TestAddConnectorRejectsZeroAxis(t *testing.T) {
	f := newFixture(10.5, 1, 8)
	_, err := f.res.AddConnector(mgl64.Vec3{}, mgl64.Vec3{}, down, down)
	assert.ErrorIs(t, err, ErrZeroAxis)

	c, err := f.res.AddConnector(mgl64.Vec3{}, mgl64.Vec3{0, 0, 3}, down, down)
	require.NoError(t, err)
	got, ok := f.res.Connector(c)
	require.True(t, ok)
	assert.InDelta(t, 1, got.Axis.Len(), 1e-12)
	assert.ErrorIs(t, f.res.SetAxis(c, mgl64.Vec3{}), ErrZeroAxis)
	assert.True(t, f.res.IsConnector(c))
	assert.Equal(t, []tiles.Handle{c}, f.res.Connectors())
}
