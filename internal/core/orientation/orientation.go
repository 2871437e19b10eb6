package orientation

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Orientation is one of the six cardinal gravity directions. None marks a
// tile (or connector) that has not been classified yet.
type Orientation uint8

const (
	None Orientation = iota
	Up
	Down
	Left
	Right
	Front
	Back
)

var gravityVectors = [...]mgl64.Vec3{
	None:  {0, 0, 0},
	Up:    {0, 1, 0},
	Down:  {0, -1, 0},
	Left:  {-1, 0, 0},
	Right: {1, 0, 0},
	Front: {0, 0, 1},
	Back:  {0, 0, -1},
}

var names = [...]string{
	None:  "none",
	Up:    "up",
	Down:  "down",
	Left:  "left",
	Right: "right",
	Front: "front",
	Back:  "back",
}

var all = [...]Orientation{Up, Down, Left, Right, Front, Back}

// All returns the six classified orientations in declaration order.
func All() []Orientation {
	out := make([]Orientation, len(all))
	copy(out, all[:])
	return out
}

// GravityVector returns the unit vector for o. None and unknown values map to
// the zero vector.
func GravityVector(o Orientation) mgl64.Vec3 {
	if int(o) >= len(gravityVectors) {
		return mgl64.Vec3{}
	}
	return gravityVectors[o]
}

// GravityVector is a shortcut for the package level lookup.
func (o Orientation) GravityVector() mgl64.Vec3 {
	return GravityVector(o)
}

// Valid reports whether o is one of the six classified orientations.
func (o Orientation) Valid() bool {
	return o >= Up && o <= Back
}

// Opposite returns the orientation whose vector is the negation of o's.
func (o Orientation) Opposite() Orientation {
	switch o {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	case Front:
		return Back
	case Back:
		return Front
	default:
		return None
	}
}

func (o Orientation) String() string {
	if int(o) >= len(names) {
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
	return names[o]
}

// Parse reads an orientation name as written in configuration files.
func Parse(s string) (Orientation, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == key {
			return Orientation(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownOrientation, s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Orientation) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// FromDownVector classifies a direction by the axis it is closest to. Vectors
// with no usable direction (zero length, NaN) classify as None.
func FromDownVector(v mgl64.Vec3) Orientation {
	if !finite(v) || v.Len() < 1e-9 {
		return None
	}

	best := None
	bestDot := math.Inf(-1)
	for _, o := range all {
		d := v.Dot(gravityVectors[o])
		if d > bestDot {
			best, bestDot = o, d
		}
	}
	return best
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
