// Package ffutex wraps the OS blocking-wait primitive used by the
// shared-memory channel protocol.
//
// The package exposes a single wait/wake surface over 32-bit words
// that live inside a memory-mapped segment, so that waiters in
// unrelated processes can block on, and wake, the same word.
//
// Only Linux is supported; the futex syscall is the one primitive
// that works on plain mapped words without any per-process handle
// exchange.
package ffutex
