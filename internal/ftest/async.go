package ftest

import (
	"testing"
	"time"
)

// ScaleMs is the timeout, in milliseconds, that the helpers in this
// package consider "soon". Generous compared to any real scheduling
// delay, so a trip means a genuine hang, not a slow machine.
const ScaleMs = 5000

// ReceiveSoon receives a value from ch, or fails the test if the
// receive blocks longer than ScaleMs.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScaleMs * time.Millisecond)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatal("timed out waiting to receive")
		panic("unreachable")
	}
}

// SendSoon sends v on ch, or fails the test if the send blocks
// longer than ScaleMs.
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScaleMs * time.Millisecond)
	defer timer.Stop()

	select {
	case ch <- v:
	case <-timer.C:
		t.Fatal("timed out waiting to send")
	}
}

// NotBlocked asserts that done is closed (or receivable) within
// ScaleMs, for checking that a goroutine finished.
func NotBlocked(t *testing.T, done <-chan struct{}) {
	t.Helper()

	timer := time.NewTimer(ScaleMs * time.Millisecond)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		t.Fatal("goroutine still blocked")
	}
}
