package fnode_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/freshet-engine/freshet/fshm"
	"github.com/freshet-engine/freshet/internal/fnode"
	"github.com/freshet-engine/freshet/internal/ftest"
	"github.com/stretchr/testify/require"
)

func newNode(t *testing.T) *fnode.Node {
	t.Helper()

	reg := fshm.NewRegistry(t.TempDir())
	seg, err := reg.Create("n", 64)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	return fnode.New(seg)
}

func TestNode_Bind_claimsProducerOnce(t *testing.T) {
	t.Parallel()

	n := newNode(t)

	require.Equal(t, fnode.StateUninitialized, n.State())
	require.True(t, n.Bind(10*time.Millisecond))
	require.Equal(t, fnode.StateNormal, n.State())
	require.Equal(t, 10*time.Millisecond, n.SamplePeriod())

	require.False(t, n.Bind(20*time.Millisecond))
}

func TestNode_AttachConsumer_notReadyBeforeBind(t *testing.T) {
	t.Parallel()

	n := newNode(t)

	_, err := n.AttachConsumer()
	require.ErrorIs(t, err, fnode.ErrNotReady)

	require.True(t, n.Bind(time.Millisecond))

	slot, err := n.AttachConsumer()
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.Equal(t, 1, n.SourceCount())
}

func TestNode_AttachConsumer_slotsExhaust(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	for i := 0; i < fnode.MaxConsumers; i++ {
		slot, err := n.AttachConsumer()
		require.NoError(t, err)
		require.Equal(t, i, slot)
	}

	_, err := n.AttachConsumer()
	require.ErrorIs(t, err, fnode.ErrSlotsExhausted)

	// Detaching frees a slot for reuse.
	n.DetachConsumer(3, false)
	slot, err := n.AttachConsumer()
	require.NoError(t, err)
	require.Equal(t, 3, slot)
}

func TestNode_firstProducerWaitIsImmediate(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, n.WaitWritable(ctx))
}

func TestNode_handshake_singleConsumer(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	slot, err := n.AttachConsumer()
	require.NoError(t, err)

	ctx := context.Background()

	// Producer publishes one sample.
	require.NoError(t, n.WaitWritable(ctx))
	n.SetSampleNumber(1)
	n.Publish()

	// Consumer sees it.
	st, err := n.WaitReadable(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, fnode.StateNormal, st)
	require.Equal(t, uint64(1), n.SampleNumber())

	// Producer is blocked until the consumer releases.
	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		if err := n.WaitWritable(ctx); err != nil {
			t.Errorf("producer wait: %v", err)
		}
	}()

	select {
	case <-unblocked:
		t.Fatal("producer wait returned before the consumer released")
	case <-time.After(50 * time.Millisecond):
	}

	n.ReleaseRead(slot)
	ftest.NotBlocked(t, unblocked)
}

func TestNode_producerWaitsForAllConsumers(t *testing.T) {
	t.Parallel()

	for _, consumers := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d_consumers", consumers), func(t *testing.T) {
			t.Parallel()

			n := newNode(t)
			require.True(t, n.Bind(time.Millisecond))

			ctx := context.Background()

			slots := make([]int, consumers)
			for i := range slots {
				slot, err := n.AttachConsumer()
				require.NoError(t, err)
				slots[i] = slot
			}

			require.NoError(t, n.WaitWritable(ctx))
			n.Publish()

			for _, slot := range slots {
				st, err := n.WaitReadable(ctx, slot)
				require.NoError(t, err)
				require.Equal(t, fnode.StateNormal, st)
			}

			unblocked := make(chan struct{})
			go func() {
				defer close(unblocked)
				if err := n.WaitWritable(ctx); err != nil {
					t.Errorf("producer wait: %v", err)
				}
			}()

			// Release all but one consumer: the producer must
			// stay blocked.
			for _, slot := range slots[:consumers-1] {
				n.ReleaseRead(slot)
			}
			select {
			case <-unblocked:
				t.Fatal("producer wait returned before every consumer released")
			case <-time.After(50 * time.Millisecond):
			}

			n.ReleaseRead(slots[consumers-1])
			ftest.NotBlocked(t, unblocked)
		})
	}
}

func TestNode_attachConcurrentWithPublish(t *testing.T) {
	t.Parallel()

	// A consumer may attach while the producer is mid-publish. It
	// may miss the sample being published at that instant, but its
	// token word must survive the attach: once AttachConsumer has
	// returned, the very next published sample has to reach it.
	for iter := 0; iter < 100; iter++ {
		n := newNode(t)
		require.True(t, n.Bind(time.Millisecond))

		pctx, stop := context.WithCancel(context.Background())
		producerDone := make(chan struct{})
		go func() {
			defer close(producerDone)
			for {
				if n.WaitWritable(pctx) != nil {
					return
				}
				n.Publish()
			}
		}()

		slot, err := n.AttachConsumer()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(
			context.Background(), ftest.ScaleMs*time.Millisecond,
		)
		st, err := n.WaitReadable(ctx, slot)
		cancel()
		require.NoError(t, err, "iteration %d", iter)
		require.Equal(t, fnode.StateNormal, st, "iteration %d", iter)

		stop()
		ftest.NotBlocked(t, producerDone)
		n.ReleaseRead(slot)
	}
}

func TestNode_SignalEnd_wakesBlockedConsumer(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	slot, err := n.AttachConsumer()
	require.NoError(t, err)

	ctx := context.Background()

	got := make(chan fnode.State, 1)
	go func() {
		st, err := n.WaitReadable(ctx, slot)
		if err != nil {
			t.Errorf("consumer wait: %v", err)
		}
		got <- st
	}()

	// Let the consumer reach its in-kernel wait.
	time.Sleep(20 * time.Millisecond)

	n.SignalEnd()
	require.Equal(t, fnode.StateEnd, ftest.ReceiveSoon(t, got))

	// Future waits observe end immediately, without blocking.
	st, err := n.WaitReadable(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, fnode.StateEnd, st)

	// The producer side fails loudly after end.
	require.ErrorIs(t, n.WaitWritable(ctx), fnode.ErrEnded)
}

func TestNode_waitIsInterruptible(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	slot, err := n.AttachConsumer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan error, 1)
	go func() {
		_, err := n.WaitReadable(ctx, slot)
		got <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, ftest.ReceiveSoon(t, got), context.Canceled)
}

func TestNode_detachWhileHoldingReleasesProducer(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	slot, err := n.AttachConsumer()
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, n.WaitWritable(ctx))
	n.Publish()

	st, err := n.WaitReadable(ctx, slot)
	require.NoError(t, err)
	require.Equal(t, fnode.StateNormal, st)

	// The consumer goes away mid-read. Its hold must come back,
	// or the producer would wait forever.
	n.DetachConsumer(slot, true)

	require.NoError(t, n.WaitWritable(ctx))
}

func TestNode_publishWithNoConsumersNeverBlocks(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	require.True(t, n.Bind(time.Millisecond))

	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, n.WaitWritable(ctx))
		n.Publish()
	}
}
