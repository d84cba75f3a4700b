package freshet

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unsafe"

	"github.com/freshet-engine/freshet/fshm"
	"github.com/freshet-engine/freshet/internal/fnode"
)

// SourceConfig configures a [Source].
type SourceConfig struct {
	// Log receives connect-phase events. If nil, slog.Default()
	// is used.
	Log *slog.Logger

	// ConnectInterval is the initial delay between connect
	// attempts; it doubles on each failure up to a quarter second.
	// Zero selects 10ms.
	ConnectInterval time.Duration

	// ConnectBudget bounds the total time Connect spends retrying
	// before giving up with [ConnectBudgetError]. Zero selects 5s.
	ConnectBudget time.Duration
}

func (c *SourceConfig) applyDefaults() {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.ConnectInterval <= 0 {
		c.ConnectInterval = 10 * time.Millisecond
	}
	if c.ConnectBudget <= 0 {
		c.ConnectBudget = 5 * time.Second
	}
}

// Source is the consumer endpoint of a channel.
//
// A Source is owned by one goroutine; its methods must not be called
// concurrently. The mandatory steady-state sequence is
// Wait, Clone, Post — Clone outside a Wait/Post window, or a double
// Post, is a programmer error and panics rather than corrupting the
// shared slot.
type Source[T any] struct {
	log  *slog.Logger
	reg  *fshm.Registry
	name string
	cfg  SourceConfig

	size uint64

	seg  *fshm.Segment
	node *fnode.Node
	slot int
	ptr  *T

	touched   bool
	connected bool
	holding   bool
	closed    bool
}

// NewSource returns a Source for the named channel. The sample
// type's layout is validated here; an unshareable type panics.
func NewSource[T any](reg *fshm.Registry, name string, cfg SourceConfig) *Source[T] {
	size := sampleSize[T]()
	cfg.applyDefaults()

	return &Source[T]{
		log:  cfg.Log.With("channel", name, "endpoint", "source"),
		reg:  reg,
		name: name,
		cfg:  cfg,
		size: size,
	}
}

// Name returns the channel name.
func (s *Source[T]) Name() string { return s.name }

// Touch registers this process's intent to consume from the channel.
// It is idempotent and performs no I/O; the actual attachment
// happens in Connect, which refuses to run on an untouched Source.
func (s *Source[T]) Touch() {
	s.touched = true
}

// Connect attaches to the channel, retrying with backoff until the
// producer has bound it, and returns the producer's declared sample
// period.
//
// Connect tolerates out-of-order process launch: it is normal for
// consumers to start before their producer, spin here through the
// connect phase, and succeed once the producer binds. If the channel
// never appears within the budget, Connect fails with
// [ConnectBudgetError].
func (s *Source[T]) Connect(ctx context.Context) (time.Duration, error) {
	if s.connected {
		panic("BUG: Source.Connect called twice on channel " + s.name)
	}
	if !s.touched {
		panic("BUG: Source.Connect before Touch on channel " + s.name)
	}

	deadline := time.Now().Add(s.cfg.ConnectBudget)
	interval := s.cfg.ConnectInterval

	var lastErr error
	for {
		lastErr = s.tryAttach()
		if lastErr == nil {
			s.connected = true
			s.log.Debug(
				"Connected to channel",
				"slot", s.slot,
				"sample_period", s.node.SamplePeriod(),
			)
			return s.node.SamplePeriod(), nil
		}

		if !isTransientConnectErr(lastErr) {
			return 0, lastErr
		}

		if time.Now().After(deadline) {
			return 0, ConnectBudgetError{
				Channel: s.name,
				Budget:  s.cfg.ConnectBudget,
				Cause:   lastErr,
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > 250*time.Millisecond {
			interval = 250 * time.Millisecond
		}
	}
}

// tryAttach performs one attach attempt: map the segment, then claim
// a consumer slot. A segment that exists but whose producer has not
// bound yet counts as not found.
func (s *Source[T]) tryAttach() error {
	seg, err := s.reg.Attach(s.name, s.size)
	if err != nil {
		return err
	}

	node := fnode.New(seg)
	slot, err := node.AttachConsumer()
	if err != nil {
		seg.Close()
		return err
	}

	s.seg = seg
	s.node = node
	s.slot = slot
	s.ptr = (*T)(unsafe.Pointer(&seg.Payload()[0]))
	return nil
}

func isTransientConnectErr(err error) bool {
	var nf fshm.NotFoundError
	return errors.As(err, &nf) || errors.Is(err, fnode.ErrNotReady)
}

// Wait blocks until the producer publishes a new sample, returning
// StateNormal, or until the channel ends, returning StateEnd.
// On StateNormal the caller holds the sample and must Post after
// reading; on StateEnd nothing is held.
func (s *Source[T]) Wait(ctx context.Context) (NodeState, error) {
	if !s.connected {
		panic("BUG: Source.Wait before Connect on channel " + s.name)
	}
	if s.holding {
		panic("BUG: Source.Wait called twice without Post on channel " + s.name)
	}

	st, err := s.node.WaitReadable(ctx, s.slot)
	if err != nil {
		return StateNormal, err
	}
	if st == fnode.StateEnd {
		return StateEnd, nil
	}

	s.holding = true
	return StateNormal, nil
}

// Clone returns a value copy of the current shared sample. It may
// only be called between a Wait that returned StateNormal and the
// matching Post.
func (s *Source[T]) Clone() T {
	if !s.holding {
		panic("BUG: Source.Clone outside a Wait/Post window on channel " + s.name)
	}
	return *s.ptr
}

// SampleNumber returns the producer's sequence number for the
// currently held sample.
func (s *Source[T]) SampleNumber() uint64 {
	if !s.holding {
		panic("BUG: Source.SampleNumber outside a Wait/Post window on channel " + s.name)
	}
	return s.node.SampleNumber()
}

// Post releases this consumer's hold on the current sample. Once
// every consumer has posted, the producer may overwrite the slot.
func (s *Source[T]) Post() {
	if !s.holding {
		panic("BUG: Source.Post without a preceding Wait on channel " + s.name)
	}
	s.holding = false
	s.node.ReleaseRead(s.slot)
}

// Close detaches from the channel. If the Source still holds a
// sample, the hold is released so the producer is not stalled.
// Close is idempotent.
func (s *Source[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.connected {
		return nil
	}

	s.node.DetachConsumer(s.slot, s.holding)
	s.holding = false
	s.connected = false

	return s.seg.Close()
}
