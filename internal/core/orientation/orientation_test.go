package orientation

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGravityVectorsAreUnitAndOpposed(t *testing.T) {
	for _, o := range All() {
		v := GravityVector(o)
		assert.InDelta(t, 1.0, v.Len(), 1e-12, o.String())

		opp := GravityVector(o.Opposite())
		assert.True(t, v.Add(opp).ApproxEqual(mgl64.Vec3{}), "%s + %s", o, o.Opposite())
	}
	assert.Equal(t, mgl64.Vec3{}, GravityVector(None))
	assert.Equal(t, mgl64.Vec3{}, GravityVector(Orientation(42)))
}

func TestFromDownVector(t *testing.T) {
	tests := []struct {
		name string
		in   mgl64.Vec3
		want Orientation
	}{
		{"exact down", mgl64.Vec3{0, -1, 0}, Down},
		{"scaled right", mgl64.Vec3{7, 0, 0}, Right},
		{"tilted front", mgl64.Vec3{0.2, -0.3, 0.9}, Front},
		{"mostly back", mgl64.Vec3{0.1, 0.1, -0.5}, Back},
		{"zero", mgl64.Vec3{}, None},
		{"nan", mgl64.Vec3{math.NaN(), 0, 1}, None},
		{"inf", mgl64.Vec3{math.Inf(1), 0, 0}, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromDownVector(tt.in))
		})
	}

	for _, o := range All() {
		assert.Equal(t, o, FromDownVector(o.GravityVector()))
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, o := range append(All(), None) {
		got, err := Parse(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	got, err := Parse("  FRONT ")
	require.NoError(t, err)
	assert.Equal(t, Front, got)

	_, err = Parse("sideways")
	assert.ErrorIs(t, err, ErrUnknownOrientation)
}

func TestFrameClassifiesGravityAsDown(t *testing.T) {
	for _, g := range All() {
		f := FrameFor(g)
		assert.Equal(t, g, f.Gravity())
		assert.Equal(t, Down, f.Classify(g.GravityVector()), "gravity %s", g)
		assert.Equal(t, Up, f.Classify(g.Opposite().GravityVector()), "gravity %s", g)

		w := f.WorldVector(Down)
		assert.True(t, w.ApproxEqualThreshold(g.GravityVector(), 1e-9), "gravity %s world %v", g, w)
	}
}

func TestFramePreservesOrientationEquality(t *testing.T) {
	f := FrameFor(Left)
	seen := map[Orientation]Orientation{}
	for _, o := range All() {
		c := f.Classify(o.GravityVector())
		require.True(t, c.Valid())
		seen[c] = o
	}
	assert.Len(t, seen, 6)
}

func TestIdentityFrame(t *testing.T) {
	var zero Frame
	assert.Equal(t, Down, zero.Gravity())
	assert.Equal(t, Right, zero.Classify(mgl64.Vec3{1, 0, 0}))
	assert.Equal(t, Front, IdentityFrame().Classify(mgl64.Vec3{0, 0, 3}))
	assert.Equal(t, IdentityFrame(), FrameFor(None))
}
