package fshm_test

import (
	"os"
	"testing"

	"github.com/freshet-engine/freshet/fshm"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAttach_roundTrip(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	created, err := reg.Create("pos", 128)
	require.NoError(t, err)
	defer created.Close()

	require.Equal(t, uint64(128), created.PayloadSize())
	require.Len(t, created.Payload(), 128)

	attached, err := reg.Attach("pos", 128)
	require.NoError(t, err)
	defer attached.Close()

	// Independent mappings of the same physical pages:
	// a store through one is visible through the other.
	created.Payload()[0] = 0xA7
	require.Equal(t, byte(0xA7), attached.Payload()[0])
}

func TestRegistry_Attach_notFoundBeforeCreate(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	_, err := reg.Attach("nobody-bound-this", 64)

	var nf fshm.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "nobody-bound-this", nf.Name)
}

func TestRegistry_Attach_sizeMismatch(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	s, err := reg.Create("pos", 64)
	require.NoError(t, err)
	defer s.Close()

	_, err = reg.Attach("pos", 48)

	var sm fshm.SizeMismatchError
	require.ErrorAs(t, err, &sm)
	require.Equal(t, uint64(48), sm.Want)
	require.Equal(t, uint64(64), sm.Got)
}

func TestRegistry_Create_adoptsExistingSegment(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	first, err := reg.Create("pos", 64)
	require.NoError(t, err)
	defer first.Close()

	// A second creator of the same shape adopts the segment
	// rather than failing: creation is idempotent by name.
	second, err := reg.Create("pos", 64)
	require.NoError(t, err)
	defer second.Close()

	first.Payload()[3] = 42
	require.Equal(t, byte(42), second.Payload()[3])

	// But a creator that disagrees about the payload size fails.
	_, err = reg.Create("pos", 1024)
	var sm fshm.SizeMismatchError
	require.ErrorAs(t, err, &sm)
}

func TestRegistry_Remove_freesTheName(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	s, err := reg.Create("pos", 64)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, reg.Remove("pos"))

	_, err = reg.Attach("pos", 64)
	var nf fshm.NotFoundError
	require.ErrorAs(t, err, &nf)

	// Removing an already-removed name is not an error.
	require.NoError(t, reg.Remove("pos"))
}

func TestRegistry_Teardown_removesOnlyOwnSegments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mine := fshm.NewRegistry(dir)
	theirs := fshm.NewRegistry(dir)

	s1, err := mine.Create("mine", 64)
	require.NoError(t, err)
	defer s1.Close()

	s2, err := theirs.Create("theirs", 64)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, mine.Teardown())

	_, err = os.Stat(mine.Path("mine"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(theirs.Path("theirs"))
	require.NoError(t, err)
}

func TestRegistry_emptyNameRejected(t *testing.T) {
	t.Parallel()

	reg := fshm.NewRegistry(t.TempDir())

	_, err := reg.Create("", 64)
	require.Error(t, err)

	_, err = reg.Attach("", 64)
	require.Error(t, err)
}
