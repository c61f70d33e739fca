package fastforward_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/emu/fake"
	"github.com/tangobattle/tango-core/fastforward"
	"github.com/tangobattle/tango-core/input"
)

func pair(tick uint32, local, remote uint16) input.Pair[input.Input, input.Input] {
	return input.Pair[input.Input, input.Input]{
		Local:  input.Input{LocalTick: tick, Joyflags: local},
		Remote: input.Input{LocalTick: tick, Joyflags: remote},
	}
}

func TestFastforwardDeterministic(t *testing.T) {
	core := fake.New()
	core.LoadROM(nil)
	core.Reset()
	ff, err := fastforward.New(core, fake.Hooks{})
	require.NoError(t, err)

	pairs := []input.Pair[input.Input, input.Input]{
		pair(0, 0x01, 0x00),
		pair(1, 0x02, 0x01),
		pair(2, 0x00, 0x02),
	}

	res1, err := ff.Fastforward(nil, pairs, input.Input{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res1.CommittedState)
	require.Equal(t, uint32(2), res1.LastCommittedLocalTick)
	require.Nil(t, res1.DirtyState)

	// Replaying the identical pair sequence from a fresh core must
	// reproduce a byte-identical committed state (determinism property).
	core2 := fake.New()
	core2.LoadROM(nil)
	core2.Reset()
	ff2, err := fastforward.New(core2, fake.Hooks{})
	require.NoError(t, err)
	res2, err := ff2.Fastforward(nil, pairs, input.Input{}, nil)
	require.NoError(t, err)
	require.Equal(t, res1.CommittedState, res2.CommittedState)
}

func TestFastforwardSpeculativeTail(t *testing.T) {
	core := fake.New()
	core.LoadROM(nil)
	core.Reset()
	ff, err := fastforward.New(core, fake.Hooks{})
	require.NoError(t, err)

	committed := []input.Pair[input.Input, input.Input]{pair(0, 0x01, 0x00)}
	lastRemote := input.Input{LocalTick: 0, Joyflags: 0x00}
	localLeft := []input.PartialInput{
		{LocalTick: 1, Joyflags: 0x02},
		{LocalTick: 2, Joyflags: 0x04},
	}

	res, err := ff.Fastforward(nil, committed, lastRemote, localLeft)
	require.NoError(t, err)
	require.NotNil(t, res.CommittedState)
	require.NotNil(t, res.DirtyState)
	require.NotEqual(t, res.CommittedState, res.DirtyState)
}

func TestFastforwardSpeculativeTailMasksNonABBits(t *testing.T) {
	// last_committed_remote_input carries Select/Start/dpad bits alongside
	// A|B (0x00ff has A|B plus the six bits above them set). Only A|B may leak into
	// the predicted tail;
	// everything else must be zeroed, so the dirty state produced here
	// must match one built from a remote input with only A|B set.
	committed := []input.Pair[input.Input, input.Input]{pair(0, 0x01, 0x00)}
	localLeft := []input.PartialInput{
		{LocalTick: 1, Joyflags: 0x02},
		{LocalTick: 2, Joyflags: 0x04},
	}

	core := fake.New()
	core.LoadROM(nil)
	core.Reset()
	ff, err := fastforward.New(core, fake.Hooks{})
	require.NoError(t, err)
	dirty, err := ff.Fastforward(nil, committed, input.Input{LocalTick: 0, Joyflags: 0x00ff}, localLeft)
	require.NoError(t, err)

	maskedCore := fake.New()
	maskedCore.LoadROM(nil)
	maskedCore.Reset()
	maskedFF, err := fastforward.New(maskedCore, fake.Hooks{})
	require.NoError(t, err)
	masked, err := maskedFF.Fastforward(nil, committed, input.Input{LocalTick: 0, Joyflags: 0x0003}, localLeft)
	require.NoError(t, err)

	require.Equal(t, masked.DirtyState, dirty.DirtyState, "non-A/B bits of last_committed_remote_input must not leak into the speculative tail")
}

func TestFastforwardEmptyInputsNoop(t *testing.T) {
	core := fake.New()
	core.LoadROM(nil)
	core.Reset()
	ff, err := fastforward.New(core, fake.Hooks{})
	require.NoError(t, err)

	res, err := ff.Fastforward(nil, nil, input.Input{}, nil)
	require.NoError(t, err)
	require.Nil(t, res.DirtyState)
	require.Equal(t, uint32(0), res.LastCommittedLocalTick)
}
