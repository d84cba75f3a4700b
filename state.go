package freshet

// NodeState is what a [Source.Wait] observed about its channel.
type NodeState int

const (
	// StateNormal means a fresh sample is held and may be cloned.
	StateNormal NodeState = iota

	// StateEnd means the producer has ended the channel. No sample
	// is held, and every subsequent Wait returns StateEnd
	// immediately.
	StateEnd
)

func (s NodeState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateEnd:
		return "end"
	default:
		return "invalid"
	}
}
