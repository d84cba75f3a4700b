package freshet_test

import (
	"testing"

	"github.com/freshet-engine/freshet"
	"github.com/freshet-engine/freshet/fpose"
	"github.com/freshet-engine/freshet/freshettest"
	"github.com/stretchr/testify/require"
)

func TestSampleTypes_shareableAccepted(t *testing.T) {
	t.Parallel()

	reg := freshettest.NewRegistry(t)

	type nested struct {
		Tag   [16]byte
		Poses [4]fpose.Pose2D
		N     int32
	}

	require.NotPanics(t, func() {
		freshet.NewSource[fpose.Pose2D](reg, "a", freshet.SourceConfig{})
		freshet.NewSource[nested](reg, "b", freshet.SourceConfig{})
		freshet.NewSink[float64](reg, "c", freshet.SinkConfig{})
		freshet.NewSink[[32]uint64](reg, "d", freshet.SinkConfig{})
	})
}

func TestSampleTypes_indirectionsRejected(t *testing.T) {
	t.Parallel()

	reg := freshettest.NewRegistry(t)

	type withString struct {
		Label string
		X     float64
	}
	type withSlice struct {
		Data []byte
	}
	type withPointer struct {
		Next *float64
	}
	type withNestedMap struct {
		Inner struct {
			M map[string]int
		}
	}

	require.Panics(t, func() {
		freshet.NewSource[withString](reg, "a", freshet.SourceConfig{})
	})
	require.Panics(t, func() {
		freshet.NewSource[withSlice](reg, "b", freshet.SourceConfig{})
	})
	require.Panics(t, func() {
		freshet.NewSink[withPointer](reg, "c", freshet.SinkConfig{})
	})
	require.Panics(t, func() {
		freshet.NewSink[withNestedMap](reg, "d", freshet.SinkConfig{})
	})
	require.Panics(t, func() {
		freshet.NewSource[struct{}](reg, "e", freshet.SourceConfig{})
	})
}
