package fpose

// Pose2D is a single position estimate. It is a shareable sample
// type: fixed layout, no indirections, copied byte-for-byte across
// process boundaries.
//
// An estimator that cannot produce a value this cycle (a detector
// that lost its target, say) still publishes a sample, with the
// corresponding Valid flag false. Downstream logic must check the
// flags rather than trusting the numbers.
type Pose2D struct {
	// Position in world units.
	X, Y float64

	// Velocity in world units per second.
	VX, VY float64

	PositionValid bool
	VelocityValid bool
}

// Mean combines position estimates by averaging the valid ones.
// Invalid inputs are excluded from both averages; if no input has a
// valid position, the output's PositionValid is false, and likewise
// for velocity.
//
// Mean is a pure CombineFunc for [Pose2D] fan-in.
func Mean(inputs []Pose2D, out *Pose2D) {
	*out = Pose2D{}

	var np, nv int
	for _, in := range inputs {
		if in.PositionValid {
			out.X += in.X
			out.Y += in.Y
			np++
		}
		if in.VelocityValid {
			out.VX += in.VX
			out.VY += in.VY
			nv++
		}
	}

	if np > 0 {
		out.X /= float64(np)
		out.Y /= float64(np)
		out.PositionValid = true
	}
	if nv > 0 {
		out.VX /= float64(nv)
		out.VY /= float64(nv)
		out.VelocityValid = true
	}
}
