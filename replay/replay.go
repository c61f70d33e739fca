// Package replay implements a deterministic, compressed, versioned replay
// format: a small header followed by a zstd-compressed stream of starting
// states and per-tick input pairs.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/binario"
)

var magic = [4]byte{'T', 'O', 'O', 'T'}

// CurrentVersion is the only replay version this package writes or reads.
// An older 0x0f format existed in earlier tooling; this package never
// needs to read it.
const CurrentVersion uint8 = 0x12

var (
	ErrBadMagic         = errors.New("replay: bad magic")
	ErrUnsupportedVersion = errors.New("replay: unsupported version")
)

// InputPair is one committed tick's local and remote input, as stored in
// a replay file.
type InputPair struct {
	LocalTick  uint32
	RemoteTick uint32
	DtMillis   uint16
	P1Joyflags uint16
	P1Packet   []byte
	P2Joyflags uint16
	P2Packet   []byte
}

// Replay is a fully decoded replay file.
type Replay struct {
	Metadata         []byte
	LocalPlayerIndex uint8
	RawInputSize     uint8
	LocalState       []byte
	RemoteState      []byte
	Inputs           []InputPair

	// IsComplete reports whether the header's NumInputs was non-zero and
	// matched the number of input records actually decoded from the stream (spec
	// §4.8, §8's completeness-flag property).
	IsComplete bool
}

// IntoRemote returns the replay as viewed from the opponent: local and
// remote states swap, the local player index flips, and each input
// pair's local/remote fields swap.
func (r Replay) IntoRemote() Replay {
	out := r
	out.LocalState = r.RemoteState
	out.RemoteState = r.LocalState
	out.LocalPlayerIndex = 1 - r.LocalPlayerIndex
	out.Inputs = make([]InputPair, len(r.Inputs))
	for i, p := range r.Inputs {
		out.Inputs[i] = InputPair{
			LocalTick:  p.RemoteTick,
			RemoteTick: p.LocalTick,
			DtMillis:   p.DtMillis,
			P1Joyflags: p.P2Joyflags,
			P1Packet:   p.P2Packet,
			P2Joyflags: p.P1Joyflags,
			P2Packet:   p.P1Packet,
		}
	}
	return out
}

// Writer accumulates committed input pairs and flushes a replay file on
// Finish. It is the exclusive property of one round.
type Writer struct {
	w           io.WriteSeeker
	metadata    []byte
	localIdx    uint8
	rawInputSz  uint8
	localState  []byte
	remoteState []byte

	zw              *zstd.Encoder
	numInputs       uint32
	numInputsOffset int64
	finished        bool
}

// NewWriter writes the fixed header and opens the zstd stream, ready to
// accept AddInput calls. w must support Seek so Finish can patch the
// NumInputs field after the fact.
func NewWriter(w io.WriteSeeker, metadata []byte, localPlayerIndex uint8, rawInputSize uint8, localState, remoteState []byte) (*Writer, error) {
	if _, err := w.Write(magic[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte{CurrentVersion}); err != nil {
		return nil, err
	}

	numInputsOffset := int64(len(magic) + 1)
	var placeholder [4]byte
	if _, err := w.Write(placeholder[:]); err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metadata)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write(metadata); err != nil {
		return nil, err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("replay: new zstd writer: %w", err)
	}

	bw := binario.NewWriter(zw)
	bw.WriteUint8(localPlayerIndex)
	bw.WriteUint8(rawInputSize)
	bw.WriteBytesWithLen(localState)
	bw.WriteBytesWithLen(remoteState)
	if err := bw.Err(); err != nil {
		return nil, fmt.Errorf("replay: write preamble: %w", err)
	}

	return &Writer{
		w:               w,
		metadata:        metadata,
		localIdx:        localPlayerIndex,
		rawInputSz:      rawInputSize,
		localState:      localState,
		remoteState:     remoteState,
		zw:              zw,
		numInputsOffset: numInputsOffset,
	}, nil
}

// AddInput appends one committed input pair to the stream.
func (rw *Writer) AddInput(p InputPair) error {
	if rw.finished {
		return errors.New("replay: write after finish")
	}
	bw := binario.NewWriter(rw.zw)
	bw.WriteUint32(p.LocalTick)
	bw.WriteUint32(p.RemoteTick)
	bw.WriteUint16(p.DtMillis)
	bw.WriteUint16(p.P1Joyflags)
	bw.WriteBytes(p.P1Packet)
	bw.WriteUint16(p.P2Joyflags)
	bw.WriteBytes(p.P2Packet)
	if err := bw.Err(); err != nil {
		return fmt.Errorf("replay: write input: %w", err)
	}
	rw.numInputs++
	return nil
}

// Close closes the zstd stream without patching the header, simulating a
// writer dropped before Finish. The resulting file still parses, but
// Replay.IsComplete will be false.
func (rw *Writer) Close() error {
	if rw.finished {
		return nil
	}
	rw.finished = true
	return rw.zw.Close()
}

// Finish closes the zstd stream and patches NumInputs into the header. If
// the writer is dropped without calling Finish, the file is still
// readable but the reader will flag it incomplete.
func (rw *Writer) Finish() error {
	if rw.finished {
		return nil
	}
	rw.finished = true

	if err := rw.zw.Close(); err != nil {
		return fmt.Errorf("replay: close zstd stream: %w", err)
	}

	if _, err := rw.w.Seek(rw.numInputsOffset, io.SeekStart); err != nil {
		return fmt.Errorf("replay: seek to patch header: %w", err)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], rw.numInputs)
	if _, err := rw.w.Write(buf[:]); err != nil {
		return fmt.Errorf("replay: patch num_inputs: %w", err)
	}
	return nil
}

// Read decodes a full replay file from r.
func Read(r io.Reader) (*Replay, error) {
	var gotMagic [4]byte
	n, _ := io.ReadFull(r, gotMagic[:])
	if n != 4 || gotMagic != magic {
		return nil, ErrBadMagic
	}

	br := binario.NewReader(r)
	version := br.ReadUint8()
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: %#x", ErrUnsupportedVersion, version)
	}

	numInputsHeader := br.ReadUint32()
	metaLen := br.ReadUint32()
	metadata := br.ReadBytes(int(metaLen))
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("replay: read header: %w", err)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("replay: new zstd reader: %w", err)
	}
	defer zr.Close()

	zbr := binario.NewReader(zr)
	localIdx := zbr.ReadUint8()
	rawInputSize := zbr.ReadUint8()
	localState := zbr.ReadBytesWithLen()
	remoteState := zbr.ReadBytesWithLen()
	if err := zbr.Err(); err != nil {
		return nil, fmt.Errorf("replay: read preamble: %w", err)
	}

	var inputs []InputPair
	for {
		localTick := zbr.ReadUint32()
		if zbr.Err() != nil {
			break
		}
		p := InputPair{LocalTick: localTick}
		p.RemoteTick = zbr.ReadUint32()
		p.DtMillis = zbr.ReadUint16()
		p.P1Joyflags = zbr.ReadUint16()
		p.P1Packet = zbr.ReadBytes(int(rawInputSize))
		p.P2Joyflags = zbr.ReadUint16()
		p.P2Packet = zbr.ReadBytes(int(rawInputSize))
		if zbr.Err() != nil {
			break
		}
		inputs = append(inputs, p)
	}

	return &Replay{
		Metadata:         metadata,
		LocalPlayerIndex: localIdx,
		RawInputSize:     rawInputSize,
		LocalState:       localState,
		RemoteState:      remoteState,
		Inputs:           inputs,
		IsComplete:       numInputsHeader > 0 && int(numInputsHeader) == len(inputs),
	}, nil
}

// InputsToPairs converts decoded replay records into the input.Pair form
// the fastforwarder consumes for playback.
func InputsToPairs(inputs []InputPair) []input.Pair[input.Input, input.Input] {
	out := make([]input.Pair[input.Input, input.Input], len(inputs))
	for i, p := range inputs {
		out[i] = input.Pair[input.Input, input.Input]{
			Local:  input.Input{LocalTick: p.LocalTick, RemoteTick: p.RemoteTick, Joyflags: p.P1Joyflags, Packet: p.P1Packet},
			Remote: input.Input{LocalTick: p.LocalTick, RemoteTick: p.RemoteTick, Joyflags: p.P2Joyflags, Packet: p.P2Packet},
		}
	}
	return out
}
