// Package freshettest provides fixtures for tests that assemble
// pipelines over real shared memory segments.
package freshettest

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/freshet-engine/freshet/fshm"
)

// NewRegistry returns a registry rooted in a per-test temporary
// directory, torn down with the test. Segments are ordinary mapped
// files, so nothing about the protocol changes; tests just never
// touch /dev/shm or collide with a concurrently running pipeline.
func NewRegistry(t testing.TB) *fshm.Registry {
	t.Helper()

	reg := fshm.NewRegistry(t.TempDir())
	t.Cleanup(func() {
		if err := reg.Teardown(); err != nil {
			t.Logf("Error tearing down registry: %v", err)
		}
	})
	return reg
}

// ChannelName returns a channel name unique to this invocation,
// so parallel tests sharing a registry directory cannot collide.
func ChannelName(t testing.TB) string {
	t.Helper()
	return "test-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
