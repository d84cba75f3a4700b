//go:build linux

package ffutex_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/freshet-engine/freshet/internal/ffutex"
	"github.com/stretchr/testify/require"
)

func TestWait_returnsImmediatelyWhenValueDiffers(t *testing.T) {
	t.Parallel()

	word := uint32(5)

	start := time.Now()
	err := ffutex.Wait(&word, 4, time.Second)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWait_timesOut(t *testing.T) {
	t.Parallel()

	word := uint32(0)

	start := time.Now()
	err := ffutex.Wait(&word, 0, 50*time.Millisecond)
	require.ErrorIs(t, err, ffutex.ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWake_unblocksWaiter(t *testing.T) {
	t.Parallel()

	var word uint32

	done := make(chan error, 1)
	go func() {
		done <- ffutex.Wait(&word, 0, 5*time.Second)
	}()

	// Give the waiter time to actually enter the kernel.
	time.Sleep(20 * time.Millisecond)

	atomic.StoreUint32(&word, 1)
	_, err := ffutex.Wake(&word, 1)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestWakeAll_unblocksEveryWaiter(t *testing.T) {
	t.Parallel()

	var word uint32

	const waiters = 4
	done := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			done <- ffutex.Wait(&word, 0, 5*time.Second)
		}()
	}

	time.Sleep(20 * time.Millisecond)

	atomic.StoreUint32(&word, 1)
	require.NoError(t, ffutex.WakeAll(&word))

	for i := 0; i < waiters; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was not woken", i)
		}
	}
}
