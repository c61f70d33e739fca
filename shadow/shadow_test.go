package shadow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/emu/fake"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/shadow"
)

func TestShadowAdvancesAndApplies(t *testing.T) {
	core := fake.New()
	require.NoError(t, core.LoadROM(nil))

	sh, err := shadow.New(core, fake.Hooks{}, 0)
	require.NoError(t, err)

	state, err := sh.AdvanceUntilFirstCommittedState()
	require.NoError(t, err)
	require.NotNil(t, state)

	_, err = sh.ApplyInput(input.Pair[input.Input, input.PartialInput]{
		Local:  input.Input{LocalTick: 1, Joyflags: 0x01},
		Remote: input.PartialInput{LocalTick: 1, Joyflags: 0x02},
	})
	require.NoError(t, err)
	require.Equal(t, uint32(1), sh.CurrentTick())
}

func TestShadowReportsDesync(t *testing.T) {
	core := fake.New()
	require.NoError(t, core.LoadROM(nil))

	sh, err := shadow.New(core, fake.Hooks{}, 0)
	require.NoError(t, err)

	sh.ReportError(shadow.ErrDesync)

	_, err = sh.AdvanceUntilFirstCommittedState()
	require.ErrorIs(t, err, shadow.ErrDesync)
}
