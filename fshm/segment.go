package fshm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Segment is one mapped shared memory region backing a channel.
//
// The mapping is shared: stores made through Bytes or ControlArea in
// one process are visible to every other process attached to the same
// name. All cross-process coordination over the mapping is the
// responsibility of the channel control block, not of this type.
type Segment struct {
	name string
	path string

	f   *os.File
	mem []byte
}

// Name returns the channel name this segment backs.
func (s *Segment) Name() string { return s.name }

// Bytes returns the full mapped region.
func (s *Segment) Bytes() []byte { return s.mem }

// ControlArea returns the slice of the mapping reserved for the
// channel control block.
func (s *Segment) ControlArea() []byte {
	return s.mem[HeaderSize:PayloadOffset]
}

// Payload returns the payload slot.
func (s *Segment) Payload() []byte {
	n := s.hdr().payloadSize
	return s.mem[PayloadOffset : PayloadOffset+n]
}

// PayloadSize returns the payload size recorded at creation.
func (s *Segment) PayloadSize() uint64 {
	return s.hdr().payloadSize
}

func (s *Segment) hdr() *header {
	return (*header)(unsafe.Pointer(&s.mem[0]))
}

// Close unmaps the region and closes the backing file.
// It does not remove the file; see [Registry.Remove].
func (s *Segment) Close() error {
	var firstErr error

	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmapping segment %q: %w", s.name, err)
		}
		s.mem = nil
	}

	if s.f != nil {
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing segment file %q: %w", s.path, err)
		}
		s.f = nil
	}

	return firstErr
}

// createSegment creates the backing file, sizes it,
// maps it, and writes the header.
//
// If the file already exists — a previous run crashed without
// removing it, or another process raced us — the existing segment is
// adopted instead, subject to the same validation as attachSegment.
// Adoption never reinitializes the control area; ownership conflicts
// surface at bind time through the control block's bound flag.
func createSegment(name, path string, payloadSize uint64) (*Segment, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			s, aerr := attachSegment(name, path, payloadSize)
			return s, false, aerr
		}
		return nil, false, fmt.Errorf("creating segment %q: %w", path, err)
	}

	total := segmentSize(payloadSize)
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, false, fmt.Errorf("sizing segment %q to %d bytes: %w", path, total, err)
	}

	mem, err := unix.Mmap(
		int(f.Fd()), 0, int(total),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, false, fmt.Errorf("mapping segment %q: %w", path, err)
	}

	s := &Segment{name: name, path: path, f: f, mem: mem}

	h := s.hdr()
	h.version = LayoutVersion
	h.payloadSize = payloadSize
	h.payloadOff = PayloadOffset

	// The magic goes in last: attachers treat a segment without it
	// as not-yet-created and keep retrying, which closes the window
	// between file creation and header initialization.
	copy(h.magic[:], Magic)

	return s, true, nil
}

// attachSegment maps an existing segment and validates its header
// against what this process expects.
func attachSegment(name, path string, payloadSize uint64) (*Segment, error) {
	// Read-write from the start: consumers store into the control
	// area, and a single open leaves no window in which the file can
	// vanish between a probe and the real open.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("opening segment %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment %q: %w", path, err)
	}
	if fi.Size() < PayloadOffset {
		// Creator has the file but has not finished sizing it.
		f.Close()
		return nil, NotFoundError{Name: name}
	}

	mem, err := unix.Mmap(
		int(f.Fd()), 0, int(fi.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping segment %q: %w", path, err)
	}

	s := &Segment{name: name, path: path, f: f, mem: mem}

	h := s.hdr()
	if string(h.magic[:]) != Magic {
		// Header not yet written; indistinguishable from absent.
		s.Close()
		return nil, NotFoundError{Name: name}
	}
	if h.version != LayoutVersion {
		s.Close()
		return nil, fmt.Errorf(
			"channel %q: segment layout version %d, this binary speaks %d",
			name, h.version, LayoutVersion,
		)
	}
	if h.payloadSize != payloadSize {
		got := h.payloadSize
		s.Close()
		return nil, SizeMismatchError{Name: name, Want: payloadSize, Got: got}
	}

	return s, nil
}
