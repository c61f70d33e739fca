package signaling_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/signaling"
)

func TestEncodeDecodeHello(t *testing.T) {
	env := signaling.Envelope{Hello: &signaling.Hello{
		ICEServers: []signaling.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"turn:example.com:3478"}, Username: "u", Credential: "p"},
		},
	}}

	data, err := signaling.Encode(env)
	require.NoError(t, err)

	got, err := signaling.Decode(data)
	require.NoError(t, err)
	require.Equal(t, env.Hello, got.Hello)
}

func TestEncodeDecodeStart(t *testing.T) {
	env := signaling.Envelope{Start: &signaling.Start{ProtocolVersion: signaling.ProtocolVersion, OfferSDP: "v=0\r\n..."}}

	data, err := signaling.Encode(env)
	require.NoError(t, err)

	got, err := signaling.Decode(data)
	require.NoError(t, err)
	require.Equal(t, env.Start, got.Start)
}

func TestEncodeDecodeOfferAnswer(t *testing.T) {
	offer, err := signaling.Encode(signaling.Envelope{Offer: &signaling.Offer{SDP: "offer-sdp"}})
	require.NoError(t, err)
	got, err := signaling.Decode(offer)
	require.NoError(t, err)
	require.Equal(t, "offer-sdp", got.Offer.SDP)

	answer, err := signaling.Encode(signaling.Envelope{Answer: &signaling.Answer{SDP: "answer-sdp"}})
	require.NoError(t, err)
	got, err = signaling.Decode(answer)
	require.NoError(t, err)
	require.Equal(t, "answer-sdp", got.Answer.SDP)
}

func TestEncodeDecodeAbort(t *testing.T) {
	data, err := signaling.Encode(signaling.Envelope{Abort: &signaling.Abort{Reason: signaling.AbortProtocolVersionTooOld}})
	require.NoError(t, err)

	got, err := signaling.Decode(data)
	require.NoError(t, err)
	require.Equal(t, signaling.AbortProtocolVersionTooOld, got.Abort.Reason)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := signaling.Decode([]byte{0xff})
	require.ErrorIs(t, err, signaling.ErrUnknownTag)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := signaling.Decode(nil)
	require.ErrorIs(t, err, signaling.ErrTruncated)
}
