package freshet

import (
	"fmt"
	"time"
)

// AlreadyBoundError is returned from [Sink.Bind] when another
// producer already owns the channel. Exactly one Sink may bind a
// given name; a second binding is a pipeline configuration error.
type AlreadyBoundError struct {
	Channel string
}

func (e AlreadyBoundError) Error() string {
	return "channel " + e.Channel + " already has a bound producer"
}

// ConnectBudgetError is returned from [Source.Connect] when the
// channel never appeared within the retry budget. The usual causes
// are a channel name typo or a producer process that never started.
type ConnectBudgetError struct {
	Channel string
	Budget  time.Duration

	// Cause is the error from the final attach attempt.
	Cause error
}

func (e ConnectBudgetError) Error() string {
	return fmt.Sprintf(
		"channel %s did not appear within the %v connect budget: %v",
		e.Channel, e.Budget, e.Cause,
	)
}

func (e ConnectBudgetError) Unwrap() error { return e.Cause }
