// Package fshm manages the named, file-backed shared memory segments
// that carry freshet channels between processes.
//
// A segment is a plain file under the registry directory
// (by default /dev/shm, so the backing store is tmpfs),
// mapped with MAP_SHARED into every attaching process.
// The first page holds a fixed header and the channel control block;
// the payload slot follows at a page boundary.
//
// Every process attaching to the same channel name must agree on the
// payload size. The header records the size chosen at creation,
// and attachers that disagree fail with [SizeMismatchError]
// rather than silently mapping a differently-shaped region.
package fshm
