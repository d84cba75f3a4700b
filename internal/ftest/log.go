package ftest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger whose output is associated with t,
// so log lines interleave correctly with test output and only
// surface on failure.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}
