package fposesim_test

import (
	"testing"
	"time"

	"github.com/freshet-engine/freshet/fpose"
	"github.com/freshet-engine/freshet/fpose/fposesim"
	"github.com/stretchr/testify/require"
)

func TestRandomAccel_reproducibleFromSeed(t *testing.T) {
	t.Parallel()

	cfg := fposesim.Config{
		Period:     10 * time.Millisecond,
		AccelSigma: 5,
		Seed:       7,
	}

	a := fposesim.New(cfg)
	b := fposesim.New(cfg)

	var pa, pb fpose.Pose2D
	for i := 0; i < 1000; i++ {
		a.Step(&pa)
		b.Step(&pb)
		require.Equal(t, pa, pb, "step %d", i)
	}
}

func TestRandomAccel_differentSeedsDiverge(t *testing.T) {
	t.Parallel()

	a := fposesim.New(fposesim.Config{Period: 10 * time.Millisecond, Seed: 1})
	b := fposesim.New(fposesim.Config{Period: 10 * time.Millisecond, Seed: 2})

	var pa, pb fpose.Pose2D
	a.Step(&pa)
	b.Step(&pb)

	require.NotEqual(t, pa, pb)
}

func TestRandomAccel_motionIsSmooth(t *testing.T) {
	t.Parallel()

	// With dt = 10ms and sigma = 5, a single step moves position by
	// at most a*dt²/2 per unit of acceleration; even a 10-sigma
	// draw stays well under one world unit. Discontinuities would
	// indicate the transition matrices are wired wrong.
	m := fposesim.New(fposesim.Config{
		Period:     10 * time.Millisecond,
		AccelSigma: 5,
		Seed:       42,
	})

	var prev, cur fpose.Pose2D
	m.Step(&prev)
	for i := 0; i < 1000; i++ {
		m.Step(&cur)

		require.True(t, cur.PositionValid)
		require.True(t, cur.VelocityValid)

		// One step at the previous velocity plus a generous
		// acceleration allowance.
		maxJump := 0.01*abs(prev.VX) + 1
		require.Less(t, abs(cur.X-prev.X), maxJump, "step %d", i)

		prev = cur
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
