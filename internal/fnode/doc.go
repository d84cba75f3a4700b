// Package fnode implements the synchronization control block that
// lives inside every channel's shared memory segment.
//
// A node coordinates exactly one producer and up to [MaxConsumers]
// consumers in unrelated processes. The protocol is token-based:
//
//   - a single writable token, held by the producer while it fills
//     the payload slot;
//   - one readable token per consumer, released by the producer when
//     it publishes.
//
// Publishing hands one readable token to every attached consumer.
// When the last consumer releases its read, the writable token
// returns to the producer. The payload slot is therefore never
// written while any consumer may still be reading it.
//
// All counters are plain uint32 words in the mapping, manipulated
// with atomics and blocked on with futexes (package ffutex), so the
// same protocol works whether the two sides are goroutines in one
// process or independent OS processes.
package fnode
