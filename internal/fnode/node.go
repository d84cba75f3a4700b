package fnode

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/freshet-engine/freshet/fshm"
)

// MaxConsumers is the number of consumer slots in a control block.
// The slot count is part of the shared layout, so it is a
// compile-time constant rather than a creation parameter.
const MaxConsumers = 32

// State is the lifecycle state of a channel.
type State uint32

const (
	// StateUninitialized means the segment exists but no producer
	// has bound it yet. Consumers treat this the same as an absent
	// channel and keep retrying their connect.
	StateUninitialized State = iota

	// StateNormal means the producer has bound and samples flow.
	StateNormal

	// StateEnd is the terminal state. It is monotonic: once set it
	// is never cleared, and every blocked or future consumer wait
	// observes it immediately.
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNormal:
		return "normal"
	case StateEnd:
		return "end"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

var (
	// ErrNotReady means the segment exists but its producer has not
	// bound yet. Transient during the connect phase.
	ErrNotReady = errors.New("channel producer has not bound yet")

	// ErrSlotsExhausted means more than MaxConsumers consumers
	// tried to attach to one channel.
	ErrSlotsExhausted = errors.New("all consumer slots are taken")

	// ErrEnded is returned from producer-side waits after the
	// channel reached StateEnd.
	ErrEnded = errors.New("channel has ended")
)

// slot is one consumer's share of the control block.
// Each slot sits on its own cache line; the readable word doubles
// as a futex word.
//
// claim and attached are distinct on purpose. claim is the
// allocation word consumers CAS to own a slot; attached is the
// visibility word Publish scans when granting tokens. A slot is
// claimed, its token word initialized, and only then marked
// attached, so a Publish running concurrently with an attach can
// never have a freshly granted token wiped by the attacher's
// initialization store.
type slot struct {
	readable uint32
	attached uint32
	claim    uint32
	_        [52]byte
}

// block is the control block layout. It is cast directly onto the
// segment's control area, so field order and padding are part of the
// cross-process contract and must only change together with
// fshm.LayoutVersion.
type block struct {
	state       uint32
	bound       uint32
	sourceCount uint32
	_           uint32
	periodNanos uint64
	sampleNum   uint64
	writable    uint32
	remaining   uint32
	_           [24]byte
	slots       [MaxConsumers]slot
}

func init() {
	if unsafe.Sizeof(block{}) > fshm.ControlAreaSize {
		panic(fmt.Sprintf(
			"BUG: control block is %d bytes, control area holds %d",
			unsafe.Sizeof(block{}), fshm.ControlAreaSize,
		))
	}
}

// Node is a process-local view of one channel's control block.
type Node struct {
	seg *fshm.Segment
	b   *block
}

// New wraps a segment's control area. The same segment may be
// wrapped by many Nodes across many processes; they all manipulate
// the one shared block.
func New(seg *fshm.Segment) *Node {
	ca := seg.ControlArea()
	return &Node{
		seg: seg,
		b:   (*block)(unsafe.Pointer(&ca[0])),
	}
}

// State returns the channel's current lifecycle state.
func (n *Node) State() State {
	return State(atomic.LoadUint32(&n.b.state))
}

// SourceCount returns the number of attached consumers.
func (n *Node) SourceCount() int {
	return int(atomic.LoadUint32(&n.b.sourceCount))
}

// SamplePeriod returns the period the producer declared at bind.
func (n *Node) SamplePeriod() time.Duration {
	return time.Duration(atomic.LoadUint64(&n.b.periodNanos))
}

// SampleNumber returns the sequence number of the current sample.
func (n *Node) SampleNumber() uint64 {
	return atomic.LoadUint64(&n.b.sampleNum)
}

// SetSampleNumber stamps the current sample's sequence number.
// Only the producer calls this, inside its critical section.
func (n *Node) SetSampleNumber(num uint64) {
	atomic.StoreUint64(&n.b.sampleNum, num)
}

// Bind claims the producer side of the channel and publishes the
// declared sample period. It returns false if another producer
// already holds the channel.
func (n *Node) Bind(period time.Duration) bool {
	if !atomic.CompareAndSwapUint32(&n.b.bound, 0, 1) {
		return false
	}

	atomic.StoreUint64(&n.b.periodNanos, uint64(period))

	// One writable token up front, so the producer's first wait
	// returns immediately.
	atomic.StoreUint32(&n.b.writable, 1)

	// The state store is what makes the channel visible to
	// consumers; it goes last.
	atomic.StoreUint32(&n.b.state, uint32(StateNormal))

	return true
}

// AttachConsumer allocates a consumer slot and returns its index.
// It fails with ErrNotReady until the producer has bound, and with
// ErrSlotsExhausted when all slots are taken.
func (n *Node) AttachConsumer() (int, error) {
	if n.State() == StateUninitialized {
		return 0, ErrNotReady
	}

	for i := range n.b.slots {
		s := &n.b.slots[i]
		if !atomic.CompareAndSwapUint32(&s.claim, 0, 1) {
			continue
		}

		// The slot is ours but invisible to Publish until attached
		// is stored; the token word must be clean before that.
		atomic.StoreUint32(&s.readable, 0)
		atomic.StoreUint32(&s.attached, 1)
		atomic.AddUint32(&n.b.sourceCount, 1)
		return i, nil
	}
	return 0, ErrSlotsExhausted
}

// DetachConsumer releases a consumer slot at teardown.
//
// If the consumer still holds an unreleased sample (it detached
// between Wait and ReleaseRead), holding must be true so the token
// is returned and the producer is not left waiting forever.
//
// Detaching is a teardown operation: the consumer set is fixed after
// the connect phase, so Detach must not race a concurrent Publish.
func (n *Node) DetachConsumer(slotIdx int, holding bool) {
	s := &n.b.slots[slotIdx]

	atomic.StoreUint32(&s.attached, 0)
	atomic.AddUint32(&n.b.sourceCount, ^uint32(0))
	if holding {
		n.ReleaseRead(slotIdx)
	}

	// Freeing the claim word goes last: the slot may be reused by
	// another attacher the moment it is zero.
	atomic.StoreUint32(&s.claim, 0)
}
