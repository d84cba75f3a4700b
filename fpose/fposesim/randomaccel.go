package fposesim

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/freshet-engine/freshet/fpose"
)

// Config configures a [RandomAccel] model.
type Config struct {
	// Period is the simulated sample period; it fixes the dt baked
	// into the state-transition matrices.
	Period time.Duration

	// AccelSigma is the standard deviation of the random
	// acceleration, in world units per second squared.
	// Zero selects 5.
	AccelSigma float64

	// Seed makes the trajectory reproducible. Two models with the
	// same config produce identical sample sequences.
	Seed uint64
}

// RandomAccel simulates smooth 2D motion under random acceleration.
//
// The state is [x, vx, y, vy]. Each step applies
//
//	state = A·state + B·accel
//
// where A is the constant-velocity transition matrix for dt and B
// maps an acceleration held constant over dt into position and
// velocity increments.
type RandomAccel struct {
	sigma float64
	rng   *rand.Rand

	a *mat.Dense
	b *mat.Dense

	state *mat.VecDense
	accel *mat.VecDense
	ax    *mat.VecDense
	bu    *mat.VecDense
}

// New returns a model starting at the origin with zero velocity.
// A non-positive Period panics.
func New(cfg Config) *RandomAccel {
	if cfg.Period <= 0 {
		panic("BUG: fposesim.Config.Period must be positive")
	}
	if cfg.AccelSigma == 0 {
		cfg.AccelSigma = 5
	}

	dt := cfg.Period.Seconds()

	a := mat.NewDense(4, 4, []float64{
		1, dt, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, dt,
		0, 0, 0, 1,
	})

	half := dt * dt / 2
	b := mat.NewDense(4, 2, []float64{
		half, 0,
		dt, 0,
		0, half,
		0, dt,
	})

	return &RandomAccel{
		sigma: cfg.AccelSigma,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		a:     a,
		b:     b,
		state: mat.NewVecDense(4, nil),
		accel: mat.NewVecDense(2, nil),
		ax:    mat.NewVecDense(4, nil),
		bu:    mat.NewVecDense(4, nil),
	}
}

// Step advances the simulation one sample period and fills out with
// the new pose. The simulator always knows its own state, so both
// validity flags are set.
func (m *RandomAccel) Step(out *fpose.Pose2D) {
	m.accel.SetVec(0, m.rng.NormFloat64()*m.sigma)
	m.accel.SetVec(1, m.rng.NormFloat64()*m.sigma)

	m.ax.MulVec(m.a, m.state)
	m.bu.MulVec(m.b, m.accel)
	m.state.AddVec(m.ax, m.bu)

	out.X = m.state.AtVec(0)
	out.VX = m.state.AtVec(1)
	out.Y = m.state.AtVec(2)
	out.VY = m.state.AtVec(3)
	out.PositionValid = true
	out.VelocityValid = true
}
