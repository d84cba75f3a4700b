package freshet

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/freshet-engine/freshet/fshm"
	"github.com/freshet-engine/freshet/internal/fnode"
)

// SinkConfig configures a [Sink].
type SinkConfig struct {
	// Log receives lifecycle events. If nil, slog.Default()
	// is used.
	Log *slog.Logger
}

// Sink is the producer endpoint of a channel. Binding a Sink creates
// the channel's segment; there is exactly one Sink per channel, and
// only the Sink may end it.
//
// A Sink is owned by one goroutine; its methods must not be called
// concurrently. The steady-state sequence is Wait, write through
// Retrieve, Post.
type Sink[T any] struct {
	log  *slog.Logger
	reg  *fshm.Registry
	name string

	size uint64

	seg  *fshm.Segment
	node *fnode.Node
	ptr  *T

	sampleNum uint64

	bound   bool
	holding bool
	ended   bool
	closed  bool
}

// NewSink returns a Sink for the named channel. The sample type's
// layout is validated here; an unshareable type panics.
func NewSink[T any](reg *fshm.Registry, name string, cfg SinkConfig) *Sink[T] {
	size := sampleSize[T]()
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Sink[T]{
		log:  cfg.Log.With("channel", name, "endpoint", "sink"),
		reg:  reg,
		name: name,
		size: size,
	}
}

// Name returns the channel name.
func (k *Sink[T]) Name() string { return k.name }

// Bind creates the channel (or adopts a leftover segment of the same
// shape) and claims its producer side, declaring the sample period
// consumers will observe at connect time.
//
// Bind fails with [AlreadyBoundError] if another producer owns the
// channel, and with [fshm.SizeMismatchError] if an existing segment
// disagrees about the payload size.
func (k *Sink[T]) Bind(period time.Duration) error {
	if k.bound {
		panic("BUG: Sink.Bind called twice on channel " + k.name)
	}
	if period <= 0 {
		return fmt.Errorf("channel %s: sample period must be positive, got %v", k.name, period)
	}

	seg, err := k.reg.Create(k.name, k.size)
	if err != nil {
		return fmt.Errorf("binding channel %s: %w", k.name, err)
	}

	node := fnode.New(seg)
	if !node.Bind(period) {
		seg.Close()
		return AlreadyBoundError{Channel: k.name}
	}

	k.seg = seg
	k.node = node
	k.ptr = (*T)(unsafe.Pointer(&seg.Payload()[0]))
	k.bound = true

	k.log.Debug("Bound channel", "sample_period", period)
	return nil
}

// Retrieve returns the mutable shared payload slot. Writing through
// the returned pointer is only legal between Wait and Post; Retrieve
// itself may be called once after Bind and the pointer kept.
func (k *Sink[T]) Retrieve() *T {
	if !k.bound {
		panic("BUG: Sink.Retrieve before Bind on channel " + k.name)
	}
	return k.ptr
}

// ConsumerCount returns the number of consumers currently attached
// to the channel. A pipeline that wants a full-topology barrier —
// no samples published until every expected consumer is attached —
// can poll this during the connect phase; the channel itself never
// requires it, and late joiners simply miss earlier samples.
func (k *Sink[T]) ConsumerCount() int {
	if !k.bound {
		panic("BUG: Sink.ConsumerCount before Bind on channel " + k.name)
	}
	return k.node.SourceCount()
}

// Wait blocks until every consumer has released the previous sample.
// On the first cycle after Bind it returns immediately.
func (k *Sink[T]) Wait(ctx context.Context) error {
	if !k.bound {
		panic("BUG: Sink.Wait before Bind on channel " + k.name)
	}
	if k.holding {
		panic("BUG: Sink.Wait called twice without Post on channel " + k.name)
	}
	if k.ended {
		return fmt.Errorf("channel %s: %w", k.name, fnode.ErrEnded)
	}

	if err := k.node.WaitWritable(ctx); err != nil {
		return err
	}

	k.holding = true
	return nil
}

// Post publishes the slot's current contents: every consumer's next
// Wait returns StateNormal and observes this sample.
func (k *Sink[T]) Post() {
	if !k.holding {
		panic("BUG: Sink.Post without a preceding Wait on channel " + k.name)
	}
	k.holding = false

	k.sampleNum++
	k.node.SetSampleNumber(k.sampleNum)
	k.node.Publish()
}

// SignalEnd transitions the channel to its terminal state, releasing
// every blocked consumer. It is idempotent, and it is the only way a
// channel ends: a producer that exits without calling it leaves its
// consumers blocked by design.
func (k *Sink[T]) SignalEnd() {
	if !k.bound {
		panic("BUG: Sink.SignalEnd before Bind on channel " + k.name)
	}
	if k.ended {
		return
	}
	k.ended = true
	k.holding = false

	k.node.SignalEnd()
	k.log.Debug("Signaled end of channel", "samples", k.sampleNum)
}

// Close ends the channel if it is not already ended, unmaps the
// segment, and removes its name from the registry. Consumers still
// attached keep their mappings and observe StateEnd. Close is
// idempotent.
func (k *Sink[T]) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true

	if !k.bound {
		return nil
	}

	k.SignalEnd()

	err := k.seg.Close()
	if rerr := k.reg.Remove(k.name); err == nil {
		err = rerr
	}
	return err
}
