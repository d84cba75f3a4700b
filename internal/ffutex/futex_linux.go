//go:build linux

package ffutex

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrTimedOut is returned by Wait when the timeout elapses before
// the word is woken or changes value.
var ErrTimedOut = errors.New("futex wait timed out")

// Futex operation codes from the kernel ABI. x/sys/unix exports the
// syscall number but not the op constants.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// Wait blocks until the word at addr is woken, changes away from old,
// or timeout elapses. A zero or negative timeout means wait forever.
//
// A nil return only means the caller should re-examine the word:
// wakes can be spurious, and a wake does not imply the word changed.
func Wait(addr *uint32, old uint32, timeout time.Duration) error {
	var tsp *unix.Timespec
	if timeout > 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsp = &ts
	}

	// FUTEX_PRIVATE_FLAG is deliberately absent:
	// waiters may live in different processes
	// mapping the same physical page.
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp),
		uintptr(old),
		uintptr(unsafe.Pointer(tsp)),
		0, 0,
	)

	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		// The word already differed from old; nothing to wait for.
		return nil
	case unix.EINTR:
		// Interrupted by a signal; the caller rechecks its condition.
		return nil
	case unix.ETIMEDOUT:
		return ErrTimedOut
	default:
		return errno
	}
}

// Wake wakes up to n waiters blocked on the word at addr,
// returning the number of waiters actually woken.
func Wake(addr *uint32, n int) (int, error) {
	woken, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(woken), nil
}

// WakeAll wakes every waiter blocked on the word at addr.
func WakeAll(addr *uint32) error {
	_, err := Wake(addr, int(^uint32(0)>>1))
	return err
}
