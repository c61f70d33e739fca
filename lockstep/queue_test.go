package lockstep_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/lockstep"
)

func TestFillInputDelaySymmetry(t *testing.T) {
	q := lockstep.New(60)
	lockstep.FillInputDelay(q, 0, 3, 9, 16)

	require.Equal(t, 3, q.LocalLen())
	require.Equal(t, 9, q.RemoteLen())

	q.AddLocalInput(input.Input{LocalTick: 3, Joyflags: 0x01, Packet: make([]byte, 16)})
	for i := uint32(3); i < 9; i++ {
		q.AddRemoteInput(input.Input{LocalTick: i, Packet: make([]byte, 16)})
	}
	q.AddRemoteInput(input.Input{LocalTick: 9, Joyflags: 0x01, Packet: make([]byte, 16)})

	committed, _ := q.ConsumeAndPeekLocal()
	// Everything up to and including the real local input at tick 3
	// should have committed once both sides reach tick 3.
	require.GreaterOrEqual(t, len(committed), 4)
	require.Equal(t, uint32(3), committed[len(committed)-1].Local.LocalTick)
}

func TestCommitRequiresEqualTick(t *testing.T) {
	q := lockstep.New(60)
	q.AddLocalInput(input.Input{LocalTick: 0})
	q.AddLocalInput(input.Input{LocalTick: 1})
	q.AddRemoteInput(input.Input{LocalTick: 0})

	committed, left := q.ConsumeAndPeekLocal()
	require.Len(t, committed, 1)
	require.Equal(t, uint32(0), committed[0].Local.LocalTick)
	require.Len(t, left, 1)
	require.Equal(t, uint32(1), left[0].LocalTick)
}

func TestQueueBound(t *testing.T) {
	q := lockstep.New(2)
	require.True(t, q.CanAddLocalInput())
	q.AddLocalInput(input.Input{LocalTick: 0})
	q.AddLocalInput(input.Input{LocalTick: 1})
	require.False(t, q.CanAddLocalInput())
	require.Panics(t, func() { q.AddLocalInput(input.Input{LocalTick: 2}) })
}

func TestTPSBiasClamped(t *testing.T) {
	q := lockstep.New(120)
	for i := uint32(0); i < 40; i++ {
		q.AddRemoteInput(input.Input{LocalTick: i})
	}
	require.Equal(t, 30, lockstep.TPSBias(q, 60))

	for i := uint32(0); i < 40; i++ {
		q.AddLocalInput(input.Input{LocalTick: i})
	}
	require.Equal(t, 0, lockstep.TPSBias(q, 60))
}
