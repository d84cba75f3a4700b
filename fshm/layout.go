package fshm

import (
	"fmt"
	"unsafe"
)

// Segment layout constants.
//
// The header occupies the first 64 bytes of the mapping.
// The control area, reserved for the channel's synchronization state,
// runs from the end of the header to the payload offset.
// The payload slot starts at a page boundary so that any
// reasonable sample alignment is satisfied.
const (
	// Magic identifies a freshet segment.
	Magic = "FRESHET\x00"

	// LayoutVersion is bumped whenever the binary layout
	// of the header or control area changes incompatibly.
	LayoutVersion = uint32(1)

	// HeaderSize is the fixed size of the segment header.
	HeaderSize = 64

	// PayloadOffset is where the payload slot begins.
	// Everything between HeaderSize and PayloadOffset
	// belongs to the control area.
	PayloadOffset = 4096

	// ControlAreaSize is the space available for the control block.
	ControlAreaSize = PayloadOffset - HeaderSize
)

// header is the on-disk (on-tmpfs) segment header.
// It is written once by the creator and read-only afterwards,
// so no field requires atomic access.
type header struct {
	magic       [8]byte
	version     uint32
	_           uint32
	payloadSize uint64
	payloadOff  uint64
	_           [32]byte
}

func init() {
	if unsafe.Sizeof(header{}) != HeaderSize {
		panic(fmt.Sprintf(
			"BUG: segment header is %d bytes, want %d",
			unsafe.Sizeof(header{}), HeaderSize,
		))
	}
}

// segmentSize returns the total mapping size for a payload of the
// given size, rounded up to a 64-byte boundary past the payload.
func segmentSize(payloadSize uint64) uint64 {
	return PayloadOffset + (payloadSize+63)&^63
}

// SizeMismatchError indicates that an existing segment was created
// with a different payload size than the attaching process expects.
// This is a configuration error: two processes naming the same
// channel disagree about the sample type.
type SizeMismatchError struct {
	Name string
	Want uint64
	Got  uint64
}

func (e SizeMismatchError) Error() string {
	return fmt.Sprintf(
		"channel %q: payload size mismatch: this process expects %d bytes but the segment holds %d",
		e.Name, e.Want, e.Got,
	)
}

// NotFoundError indicates that no segment exists yet under the given
// name. During the connect phase this is transient — the producer may
// simply not have bound yet — and callers are expected to retry.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return "channel " + e.Name + " does not exist"
}
