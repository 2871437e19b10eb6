package obstruction

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
)

func newTracker() (*tiles.Registry, *Tracker) {
	reg := tiles.NewRegistry(10.5, 10, nil)
	return reg, NewTracker(reg, Options{Margin: 1, HitRadius: 2.5}, nil)
}

func typeOf(reg *tiles.Registry, h tiles.Handle) tiles.TraversalType {
	t, _ := reg.Lookup(h)
	return t.Type()
}

var half = mgl64.Vec3{5, 5, 5}

func TestBeginEndRoundTrip(t *testing.T) {
	reg, tr := newTracker()
	below := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up)
	side := reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left, tiles.WithType(tiles.Exit))
	spikes := reg.CreateTile(mgl64.Vec3{0, 0, -5}, orientation.Front, tiles.WithType(tiles.Spikes))
	far := reg.CreateTile(mgl64.Vec3{0, -20, 0}, orientation.Up)

	held, err := tr.Begin(Body{Source: "cube-1", Center: mgl64.Vec3{}, HalfExtents: half})
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{below, side, spikes}, held)
	for _, h := range held {
		assert.Equal(t, tiles.Invalid, typeOf(reg, h))
		assert.True(t, tr.Obstructed(h))
	}
	assert.Equal(t, tiles.Valid, typeOf(reg, far))
	assert.Equal(t, []SourceID{"cube-1"}, tr.Active())

	restored, err := tr.End("cube-1")
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{below, side, spikes}, restored)
	assert.Equal(t, tiles.Valid, typeOf(reg, below))
	assert.Equal(t, tiles.Exit, typeOf(reg, side))
	assert.Equal(t, tiles.Spikes, typeOf(reg, spikes))
	assert.False(t, tr.Obstructed(below))
	assert.Empty(t, tr.Active())

	_, err = tr.End("cube-1")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestOverlappingSourcesDoNotCrossRestore(t *testing.T) {
	reg, tr := newTracker()
	shared := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up, tiles.WithType(tiles.Exit))
	onlyA := reg.CreateTile(mgl64.Vec3{-5, 0, 0}, orientation.Right)
	onlyB := reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.Left)

	// A sits left of the shared tile, B right; both reach it diagonally
	// through their down probe
	a := Body{Source: "a", Center: mgl64.Vec3{-1, 0, 0}, HalfExtents: mgl64.Vec3{3, 5, 3}}
	b := Body{Source: "b", Center: mgl64.Vec3{1, 0, 0}, HalfExtents: mgl64.Vec3{3, 5, 3}}

	heldA, err := tr.Begin(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []tiles.Handle{shared, onlyA}, heldA)
	heldB, err := tr.Begin(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []tiles.Handle{shared, onlyB}, heldB)
	assert.Equal(t, []SourceID{"a", "b"}, tr.Holders(shared))

	restored, err := tr.End("a")
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{onlyA}, restored)
	assert.Equal(t, tiles.Invalid, typeOf(reg, shared), "still held by b")
	assert.Equal(t, tiles.Valid, typeOf(reg, onlyA))
	assert.Equal(t, tiles.Invalid, typeOf(reg, onlyB))

	restored, err = tr.End("b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []tiles.Handle{shared, onlyB}, restored)
	assert.Equal(t, tiles.Exit, typeOf(reg, shared), "original type, not b's view of it")
	assert.Equal(t, tiles.Valid, typeOf(reg, onlyB))
}

func TestUpdateMovesHold(t *testing.T) {
	reg, tr := newTracker()
	first := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up)
	second := reg.CreateTile(mgl64.Vec3{20, -5, 0}, orientation.Up)

	_, err := tr.Begin(Body{Source: "s", Center: mgl64.Vec3{}, HalfExtents: half})
	require.NoError(t, err)
	assert.Equal(t, tiles.Invalid, typeOf(reg, first))

	held, err := tr.Update(Body{Source: "s", Center: mgl64.Vec3{20, 0, 0}, HalfExtents: half})
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{second}, held)
	assert.Equal(t, tiles.Valid, typeOf(reg, first))
	assert.Equal(t, tiles.Invalid, typeOf(reg, second))

	// Begin on an active source re-probes as well
	held, err = tr.Begin(Body{Source: "s", Center: mgl64.Vec3{}, HalfExtents: half})
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{first}, held)
	body, ok := tr.Body("s")
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{}, body.Center)
}

func TestProbeSkipsOwnGroupAndConnectors(t *testing.T) {
	reg, tr := newTracker()
	own := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up, tiles.WithGroup(9))
	reg.CreateTile(mgl64.Vec3{5, 0, 0}, orientation.None, tiles.WithKind(tiles.KindConnector))
	foreign := reg.CreateTile(mgl64.Vec3{0, -5.5, 0}, orientation.Up, tiles.WithGroup(2))

	held, err := tr.Begin(Body{Source: "s", Center: mgl64.Vec3{}, HalfExtents: half, Group: 9})
	require.NoError(t, err)
	assert.Equal(t, []tiles.Handle{foreign}, held)
	assert.Equal(t, tiles.Valid, typeOf(reg, own))

	_, err = tr.Begin(Body{})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestDestroyedTileIsForgotten(t *testing.T) {
	reg, tr := newTracker()
	h := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up)
	_, err := tr.Begin(Body{Source: "s", Center: mgl64.Vec3{}, HalfExtents: half})
	require.NoError(t, err)

	tr.ForgetTile(h)
	require.NoError(t, reg.DestroyTile(h))
	restored, err := tr.End("s")
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestSetPriorChangesRestoredType(t *testing.T) {
	reg, tr := newTracker()
	h := reg.CreateTile(mgl64.Vec3{0, -5, 0}, orientation.Up)
	assert.False(t, tr.SetPrior(h, tiles.Exit))

	_, err := tr.Begin(Body{Source: "s", Center: mgl64.Vec3{}, HalfExtents: half})
	require.NoError(t, err)
	assert.True(t, tr.SetPrior(h, tiles.Exit))

	_, err = tr.End("s")
	require.NoError(t, err)
	assert.Equal(t, tiles.Exit, typeOf(reg, h))
}
