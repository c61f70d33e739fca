package round_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/emu/fake"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/round"
)

func newRound(t *testing.T) *round.Round {
	t.Helper()
	primary, shadowCore, ffCore := fake.New(), fake.New(), fake.New()
	for _, c := range []*fake.Emulator{primary, shadowCore, ffCore} {
		require.NoError(t, c.LoadROM(nil))
		c.Reset()
	}

	r, err := round.New(context.Background(), round.Params{
		SessionLabel:     "test",
		LocalPlayerIndex: 0,
		MaxQueueLength:   60,
		PrimaryCore:      primary,
		ShadowCore:       shadowCore,
		FFCore:           ffCore,
		Hooks:            fake.Hooks{},
	})
	require.NoError(t, err)
	require.NoError(t, r.Begin())
	require.NoError(t, r.CommitStart(nil))
	return r
}

func TestRoundReachesMainAndCommits(t *testing.T) {
	r := newRound(t)
	require.Equal(t, round.StateMain, r.State())

	require.NoError(t, r.SetLocalJoyflags(0x01))
	require.NoError(t, r.AddRemoteInput(input.Input{LocalTick: 1, Joyflags: 0x00}))

	require.Equal(t, round.StateMain, r.State())
}

func TestRoundEndsAfterEnoughTicks(t *testing.T) {
	r := newRound(t)

	for tick := uint32(1); tick <= fake.TicksPerRound; tick++ {
		require.NoError(t, r.SetLocalJoyflags(uint16(tick)))
		require.NoError(t, r.AddRemoteInput(input.Input{LocalTick: tick, Joyflags: uint16(tick)}))
	}

	require.Equal(t, round.StateEnded, r.State())
	require.NotEqual(t, round.OutcomeUnknown, r.Outcome())
}

func TestRoundRejectsInputBeforeMain(t *testing.T) {
	primary, shadowCore, ffCore := fake.New(), fake.New(), fake.New()
	for _, c := range []*fake.Emulator{primary, shadowCore, ffCore} {
		require.NoError(t, c.LoadROM(nil))
		c.Reset()
	}
	r, err := round.New(context.Background(), round.Params{
		SessionLabel: "t2", MaxQueueLength: 60,
		PrimaryCore: primary, ShadowCore: shadowCore, FFCore: ffCore,
		Hooks: fake.Hooks{},
	})
	require.NoError(t, err)

	err = r.SetLocalJoyflags(0x01)
	require.ErrorIs(t, err, round.ErrProtocolViolation)
}
