package replay_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/replay"
)

// memFile is a minimal io.WriteSeeker backed by an in-memory buffer, since
// bytes.Buffer itself doesn't support Seek and the writer needs to patch
// the NumInputs header field after streaming the body.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = int(offset)
	case io.SeekCurrent:
		m.pos += int(offset)
	case io.SeekEnd:
		m.pos = len(m.buf) + int(offset)
	}
	return int64(m.pos), nil
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := &memFile{}
	w, err := replay.NewWriter(f, []byte("meta"), 0, 4, []byte("local-state"), []byte("remote-state"))
	require.NoError(t, err)

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, w.AddInput(replay.InputPair{
			LocalTick:  i,
			RemoteTick: i,
			DtMillis:   16,
			P1Joyflags: uint16(i),
			P1Packet:   []byte{1, 2, 3, 4},
			P2Joyflags: uint16(i + 1),
			P2Packet:   []byte{5, 6, 7, 8},
		}))
	}
	require.NoError(t, w.Finish())

	r, err := replay.Read(bytes.NewReader(f.buf))
	require.NoError(t, err)
	require.True(t, r.IsComplete)
	require.Len(t, r.Inputs, 5)
	require.Equal(t, []byte("local-state"), r.LocalState)
	require.Equal(t, []byte("remote-state"), r.RemoteState)
	require.Equal(t, uint8(4), r.RawInputSize)
	require.Equal(t, uint16(3), r.Inputs[3].P1Joyflags)
}

func TestIntoRemoteInvolution(t *testing.T) {
	f := &memFile{}
	w, err := replay.NewWriter(f, nil, 0, 4, []byte("a"), []byte("b"))
	require.NoError(t, err)
	require.NoError(t, w.AddInput(replay.InputPair{LocalTick: 0, RemoteTick: 0, P1Joyflags: 1, P1Packet: []byte{0, 0, 0, 0}, P2Joyflags: 2, P2Packet: []byte{0, 0, 0, 0}}))
	require.NoError(t, w.Finish())

	r, err := replay.Read(bytes.NewReader(f.buf))
	require.NoError(t, err)

	flipped := r.IntoRemote()
	require.Equal(t, r.LocalState, flipped.RemoteState)
	require.Equal(t, r.Inputs[0].P1Joyflags, flipped.Inputs[0].P2Joyflags)

	back := flipped.IntoRemote()
	require.Equal(t, r.LocalPlayerIndex, back.LocalPlayerIndex)
	require.Equal(t, r.Inputs, back.Inputs)
}

func TestIncompleteReplayDetected(t *testing.T) {
	f := &memFile{}
	w, err := replay.NewWriter(f, nil, 0, 4, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.AddInput(replay.InputPair{P1Packet: []byte{0, 0, 0, 0}, P2Packet: []byte{0, 0, 0, 0}}))
	// Deliberately skip Finish: NumInputs stays zero in the header even
	// though the zstd stream has one record in it — close just the
	// stream directly to simulate a dropped writer.
	require.NoError(t, w.Close())

	r, err := replay.Read(bytes.NewReader(f.buf))
	require.NoError(t, err)
	require.False(t, r.IsComplete)
}
