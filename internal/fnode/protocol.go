package fnode

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/freshet-engine/freshet/internal/ffutex"
)

// maxWaitSlice bounds any single in-kernel wait. A waiter that times
// out simply rechecks its condition and sleeps again, so this is a
// safety net against a lost wake, not a polling interval: the normal
// path is woken explicitly.
const maxWaitSlice = 500 * time.Millisecond

// WaitWritable blocks until the producer may write the payload slot,
// i.e. every consumer has released the previous sample. On the very
// first cycle after Bind it returns immediately.
//
// It returns ctx.Err() on cancellation and ErrEnded if the channel
// has already been ended.
func (n *Node) WaitWritable(ctx context.Context) error {
	for {
		if n.State() == StateEnd {
			return ErrEnded
		}

		w := atomic.LoadUint32(&n.b.writable)
		if w > 0 && atomic.CompareAndSwapUint32(&n.b.writable, w, w-1) {
			return nil
		}

		if err := n.waitWord(ctx, &n.b.writable, 0); err != nil {
			return err
		}
	}
}

// Publish makes the payload slot's current contents visible to every
// attached consumer: it releases one readable token per consumer and
// records how many releases must come back before the producer may
// write again.
//
// Only the producer calls Publish, holding the writable token taken
// by WaitWritable.
func (n *Node) Publish() {
	var attached [MaxConsumers]bool
	count := uint32(0)
	for i := range n.b.slots {
		if atomic.LoadUint32(&n.b.slots[i].attached) != 0 {
			attached[i] = true
			count++
		}
	}

	// remaining must be in place before any consumer can see its
	// token, or a fast consumer's release could underflow it.
	atomic.StoreUint32(&n.b.remaining, count)

	if count == 0 {
		// No consumers: the token comes straight back.
		atomic.AddUint32(&n.b.writable, 1)
		return
	}

	for i := range n.b.slots {
		if !attached[i] {
			continue
		}
		atomic.AddUint32(&n.b.slots[i].readable, 1)
		ffutex.Wake(&n.b.slots[i].readable, 1)
	}
}

// WaitReadable blocks until a new sample is available for the given
// consumer slot, returning StateNormal, or until the channel ends,
// returning StateEnd. The end check comes first, so a consumer never
// blocks — and an already-blocked consumer does not stay blocked —
// once StateEnd is set.
func (n *Node) WaitReadable(ctx context.Context, slotIdx int) (State, error) {
	readable := &n.b.slots[slotIdx].readable

	for {
		if n.State() == StateEnd {
			return StateEnd, nil
		}

		r := atomic.LoadUint32(readable)
		if r > 0 && atomic.CompareAndSwapUint32(readable, r, r-1) {
			return StateNormal, nil
		}

		if err := n.waitWord(ctx, readable, 0); err != nil {
			return StateNormal, err
		}
	}
}

// ReleaseRead returns one consumer's hold on the current sample.
// The last consumer to release hands the writable token back to the
// producer and wakes it.
func (n *Node) ReleaseRead(slotIdx int) {
	if atomic.AddUint32(&n.b.remaining, ^uint32(0)) != 0 {
		return
	}
	atomic.AddUint32(&n.b.writable, 1)
	ffutex.Wake(&n.b.writable, 1)
}

// SignalEnd transitions the channel to StateEnd and wakes every
// waiter, producer- and consumer-side, in every attached process.
// It is monotonic and idempotent.
func (n *Node) SignalEnd() {
	atomic.StoreUint32(&n.b.state, uint32(StateEnd))

	ffutex.WakeAll(&n.b.writable)
	for i := range n.b.slots {
		ffutex.WakeAll(&n.b.slots[i].readable)
	}
}

// waitWord blocks on one futex word while it holds old.
//
// Cancelling ctx wakes the word (waiters in other processes recheck
// their condition and go back to sleep) so the caller unblocks
// promptly even mid-wait. Spurious returns are fine; every caller
// loops around a recheck.
func (n *Node) waitWord(ctx context.Context, addr *uint32, old uint32) error {
	done := ctx.Done()
	if done == nil {
		_ = ffutex.Wait(addr, old, maxWaitSlice)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
			ffutex.WakeAll(addr)
		case <-stop:
		}
	}()

	_ = ffutex.Wait(addr, old, maxWaitSlice)
	close(stop)

	return ctx.Err()
}
