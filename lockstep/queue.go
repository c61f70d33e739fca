// Package lockstep implements the per-round input queues: two bounded
// FIFOs that commit a pair whenever both heads share a local_tick, plus
// the TPS-bias calculation that nudges the slower side.
package lockstep

import (
	"fmt"

	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/ringbuf"
)

const DefaultMaxQueueLength = 60

// Queue holds one round's local and remote input FIFOs and the last
// committed remote input.
type Queue struct {
	local  *ringbuf.Buffer[input.Input]
	remote *ringbuf.Buffer[input.Input]

	maxLen int

	lastCommittedRemote input.Input
	haveLastCommitted   bool
}

func New(maxQueueLength int) *Queue {
	if maxQueueLength <= 0 {
		maxQueueLength = DefaultMaxQueueLength
	}
	return &Queue{
		local:  ringbuf.New[input.Input](maxQueueLength),
		remote: ringbuf.New[input.Input](maxQueueLength),
		maxLen: maxQueueLength,
	}
}

func (q *Queue) LocalLen() int  { return q.local.Len() }
func (q *Queue) RemoteLen() int { return q.remote.Len() }

func (q *Queue) CanAddLocalInput() bool {
	return q.local.Len() < q.maxLen
}

func (q *Queue) CanAddRemoteInput() bool {
	return q.remote.Len() < q.maxLen
}

// AddLocalInput appends a locally committed input. It panics on overflow —
// callers must check CanAddLocalInput first.
func (q *Queue) AddLocalInput(in input.Input) {
	if !q.CanAddLocalInput() {
		panic(fmt.Sprintf("lockstep: local queue overflow at capacity %d", q.maxLen))
	}
	q.local.PushBack(in)
}

func (q *Queue) AddRemoteInput(in input.Input) {
	if !q.CanAddRemoteInput() {
		panic(fmt.Sprintf("lockstep: remote queue overflow at capacity %d", q.maxLen))
	}
	q.remote.PushBack(in)
}

// LastCommittedRemoteInput returns the most recently committed remote
// input, used by the fastforwarder's prediction policy.
func (q *Queue) LastCommittedRemoteInput() (input.Input, bool) {
	return q.lastCommittedRemote, q.haveLastCommitted
}

// ConsumeAndPeekLocal pops every pair whose heads share a local_tick,
// returning the committed pairs in order and the local inputs still
// sitting in the queue afterward.
func (q *Queue) ConsumeAndPeekLocal() (committed []input.Pair[input.Input, input.Input], localLeft []input.PartialInput) {
	for q.local.Len() > 0 && q.remote.Len() > 0 && q.local.Front().LocalTick == q.remote.Front().LocalTick {
		l := q.local.PopFront()
		r := q.remote.PopFront()
		committed = append(committed, input.Pair[input.Input, input.Input]{Local: l, Remote: r})
		q.lastCommittedRemote = r
		q.haveLastCommitted = true
	}

	localLeft = make([]input.PartialInput, q.local.Len())
	for i := 0; i < q.local.Len(); i++ {
		localLeft[i] = q.local.At(i).Partial()
	}

	return committed, localLeft
}

// FillInputDelay pads each queue with delay zero-joyflag inputs starting at
// currentTick, so the first real input submitted at tick T is consumed by
// the game at tick T+delay.
func FillInputDelay(q *Queue, currentTick uint32, localDelay, remoteDelay uint32, packetSize int) {
	for i := uint32(0); i < localDelay; i++ {
		q.local.PushBack(input.Input{LocalTick: currentTick + i, Packet: make([]byte, packetSize)})
	}
	for i := uint32(0); i < remoteDelay; i++ {
		q.remote.PushBack(input.Input{LocalTick: currentTick + i, Packet: make([]byte, packetSize)})
	}
}

// TPSBias is the per-commit tick-rate adjustment: remote queue length
// minus local queue length, clamped to ±fps/2.
func TPSBias(q *Queue, fps int) int {
	bias := q.remote.Len() - q.local.Len()
	limit := fps / 2
	if bias > limit {
		return limit
	}
	if bias < -limit {
		return -limit
	}
	return bias
}
