// Package input holds the core data model entities shared by the wire
// codec, the lockstep queues, the shadow runner, the fastforwarder, and the
// replay format.
package input

import "time"

// Joyflag bits that the prediction policy is allowed to carry forward for
// a speculative tick: A and B, the two latency-sensitive held buttons.
// All other bits (Select/Start/L/R/dpad) are zeroed in a prediction since
// getting them wrong causes visible flicker rather than a subtle feel
// difference.
const (
	JoyflagA uint16 = 1 << 0
	JoyflagB uint16 = 1 << 1

	PredictableJoyflags = JoyflagA | JoyflagB
)

// PartialInput is what gets sent over the wire: a tick-stamped joyflags
// sample without the turn packet, which the opponent's game has not
// produced yet.
type PartialInput struct {
	LocalTick  uint32
	RemoteTick uint32
	Joyflags   uint16
}

// Input is a committed input: a PartialInput plus the turn packet that was
// either received over the wire (remote side) or produced locally.
type Input struct {
	LocalTick  uint32
	RemoteTick uint32
	Joyflags   uint16
	Packet     []byte

	// Dt is the wall-clock gap since the previous committed input on this
	// side, recorded for replay metadata only; it plays no role in
	// determinism.
	Dt time.Duration
}

func (in Input) Partial() PartialInput {
	return PartialInput{LocalTick: in.LocalTick, RemoteTick: in.RemoteTick, Joyflags: in.Joyflags}
}

// Pair couples a local-side and remote-side value of the same or related
// types (InputPair<L,R>).
type Pair[L, R any] struct {
	Local  L
	Remote R
}

// CommittedState is an immutable snapshot from which any number of re-runs
// must produce identical results.
type CommittedState struct {
	Tick            uint32
	EmulatorState   []byte
	LastLocalPacket []byte
}
