package packet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/packet"
)

func TestRoundTrip(t *testing.T) {
	packetSize := 16

	cases := []packet.Message{
		packet.HelloMessage(packet.Hello{
			ProtocolVersion: 0x3a,
			MatchType:       packet.MatchType{1, 0},
			GameInfo: packet.GameInfo{
				Family:   "bn6",
				Variant:  1,
				Revision: 0,
				RomCRC32: 0xdeadbeef,
			},
			RNGCommitment: [32]byte{1, 2, 3},
			InputDelay:    3,
		}),
		packet.HolaMessage(packet.Hola{RNGNonce: [16]byte{9, 8, 7}}),
		packet.InitMessage(packet.Init{RoundNumber: 2, InputDelay: 5, Marshaled: []byte("init-blob")}),
		packet.InputMessage(packet.InputMsg{
			RoundNumber: 2,
			LocalTick:   123,
			TickDiff:    -7,
			Joyflags:    0x0201,
			Packet:      make([]byte, packetSize),
		}),
		packet.PingMessage(packet.Ping{TS: 123456789}),
		packet.PongMessage(packet.Pong{TS: 987654321}),
		packet.SmuggleMessage(packet.Smuggle{Payload: []byte("app-data")}),
	}

	for _, c := range cases {
		encoded, err := packet.Encode(c)
		require.NoError(t, err)

		decoded, err := packet.Decode(encoded, packetSize)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := packet.Decode(nil, 16)
	require.ErrorIs(t, err, packet.ErrTruncated)

	encoded, err := packet.Encode(packet.PingMessage(packet.Ping{TS: 1}))
	require.NoError(t, err)

	_, err = packet.Decode(encoded[:len(encoded)-2], 16)
	require.ErrorIs(t, err, packet.ErrTruncated)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := packet.Decode([]byte{0xff}, 16)
	require.ErrorIs(t, err, packet.ErrUnknownTag)
}
