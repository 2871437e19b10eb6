package orientation

import "github.com/go-gl/mathgl/mgl64"

// Frame maps world-space directions into the gravity-relative space tiles are
// classified in. Under a frame built for gravity g, a tile whose down axis
// equals g classifies as Down.
type Frame struct {
	gravity Orientation
	toLocal mgl64.Quat
	toWorld mgl64.Quat
}

// IdentityFrame is the frame for the default Down gravity.
func IdentityFrame() Frame {
	return Frame{gravity: Down, toLocal: mgl64.QuatIdent(), toWorld: mgl64.QuatIdent()}
}

// FrameFor builds the frame for the given world gravity. None falls back to the
// identity frame.
func FrameFor(gravity Orientation) Frame {
	if !gravity.Valid() || gravity == Down {
		return IdentityFrame()
	}
	q := mgl64.QuatBetweenVectors(gravity.GravityVector(), Down.GravityVector())
	return Frame{gravity: gravity, toLocal: q, toWorld: q.Inverse()}
}

// Gravity returns the world gravity this frame was built for.
func (f Frame) Gravity() Orientation {
	if f.gravity == None {
		return Down
	}
	return f.gravity
}

// Classify returns the gravity-relative orientation of a world-space down axis.
func (f Frame) Classify(down mgl64.Vec3) Orientation {
	return FromDownVector(f.local().Rotate(down))
}

// WorldVector converts a gravity-relative orientation into a world direction.
func (f Frame) WorldVector(o Orientation) mgl64.Vec3 {
	v := o.GravityVector()
	if v.Len() == 0 {
		return v
	}
	return f.world().Rotate(v)
}

func (f Frame) local() mgl64.Quat {
	if f.gravity == None {
		return mgl64.QuatIdent()
	}
	return f.toLocal
}

func (f Frame) world() mgl64.Quat {
	if f.gravity == None {
		return mgl64.QuatIdent()
	}
	return f.toWorld
}
