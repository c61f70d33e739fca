package negotiation_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/datachannel"
	"github.com/tangobattle/tango-core/negotiation"
	"github.com/tangobattle/tango-core/packet"
)

func gameInfo() packet.GameInfo {
	return packet.GameInfo{Family: "bn6", Variant: 0, Revision: 1, RomCRC32: 0x1234}
}

func run(t *testing.T, aParams, bParams negotiation.Params) (*negotiation.Result, *negotiation.Result, error, error) {
	t.Helper()

	a, b := datachannel.NewPipe(8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var resA, resB *negotiation.Result
	var errA, errB error

	wg.Add(2)
	go func() {
		defer wg.Done()
		resA, errA = negotiation.Negotiate(ctx, a, aParams)
	}()
	go func() {
		defer wg.Done()
		resB, errB = negotiation.Negotiate(ctx, b, bParams)
	}()
	wg.Wait()

	return resA, resB, errA, errB
}

func TestNegotiateHappyPath(t *testing.T) {
	params := negotiation.Params{
		MatchType:  packet.MatchType{1, 0},
		GameInfo:   gameInfo(),
		InputDelay: 3,
	}
	paramsB := params
	paramsB.InputDelay = 9

	resA, resB, errA, errB := run(t, params, paramsB)
	require.NoError(t, errA)
	require.NoError(t, errB)

	require.NotEqual(t, resA.IsOfferer, resB.IsOfferer, "exactly one side should be offerer")
	require.Equal(t, uint32(9), resA.PeerDelay)
	require.Equal(t, uint32(3), resB.PeerDelay)

	for i := 0; i < 100; i++ {
		require.Equal(t, resA.SharedRNG.Uint64(), resB.SharedRNG.Uint64())
	}
}

func TestNegotiateIdenticalCommitment(t *testing.T) {
	sameNonce := bytes.Repeat([]byte{0x42}, 32) // 16 bytes consumed per side
	paramsA := negotiation.Params{
		MatchType:   packet.MatchType{1, 0},
		GameInfo:    gameInfo(),
		NonceSource: bytes.NewReader(sameNonce),
	}
	paramsB := negotiation.Params{
		MatchType:   packet.MatchType{1, 0},
		GameInfo:    gameInfo(),
		NonceSource: bytes.NewReader(sameNonce),
	}

	_, _, errA, errB := run(t, paramsA, paramsB)
	require.ErrorIs(t, errA, negotiation.ErrIdenticalCommitment)
	require.ErrorIs(t, errB, negotiation.ErrIdenticalCommitment)
}

func TestNegotiateWrongProtocolVersion(t *testing.T) {
	a, b := datachannel.NewPipe(8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var resA *negotiation.Result
	var errA error

	wg.Add(1)
	go func() {
		defer wg.Done()
		resA, errA = negotiation.Negotiate(ctx, a, negotiation.Params{
			MatchType: packet.MatchType{1, 0},
			GameInfo:  gameInfo(),
		})
	}()

	// Act as a raw peer speaking an old protocol version.
	raw, err := b.Receive(ctx)
	require.NoError(t, err)
	msg, err := packet.Decode(raw, 0)
	require.NoError(t, err)
	require.NotNil(t, msg.Hello)

	bad := *msg.Hello
	bad.ProtocolVersion = negotiation.ProtocolVersion - 1
	encoded, err := packet.Encode(packet.HelloMessage(bad))
	require.NoError(t, err)
	require.NoError(t, b.Send(ctx, encoded))

	wg.Wait()
	require.Nil(t, resA)
	require.ErrorIs(t, errA, negotiation.ErrProtocolVersionMismatch)
}

func TestNegotiateMatchTypeMismatch(t *testing.T) {
	paramsA := negotiation.Params{MatchType: packet.MatchType{1, 0}, GameInfo: gameInfo()}
	paramsB := negotiation.Params{MatchType: packet.MatchType{2, 0}, GameInfo: gameInfo()}

	_, _, errA, errB := run(t, paramsA, paramsB)
	require.ErrorIs(t, errA, negotiation.ErrMatchTypeMismatch)
	require.ErrorIs(t, errB, negotiation.ErrMatchTypeMismatch)
}

func TestNegotiateGameMismatch(t *testing.T) {
	other := gameInfo()
	other.Family = "bn5"

	paramsA := negotiation.Params{
		MatchType:  packet.MatchType{1, 0},
		GameInfo:   gameInfo(),
		Compatible: func(g packet.GameInfo) bool { return g.Family == "bn6" },
	}
	paramsB := negotiation.Params{
		MatchType: packet.MatchType{1, 0},
		GameInfo:  other,
	}

	_, _, errA, _ := run(t, paramsA, paramsB)
	require.ErrorIs(t, errA, negotiation.ErrGameMismatch)
}
