package bps_test

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangobattle/tango-core/bps"
)

// buildPatch hand-assembles a minimal BPS1 patch: one TargetRead
// instruction that replaces the whole source with an arbitrary target,
// followed by the standard three-checksum footer.
func buildPatch(t *testing.T, src, tgt []byte) []byte {
	t.Helper()

	var body []byte
	length := len(tgt)
	instr := uint64(length-1)<<2 | 1 // action=TargetRead
	body = append(body, encodeVLQ(instr)...)
	body = append(body, tgt...)

	var patch []byte
	patch = append(patch, 'B', 'P', 'S', '1')
	patch = append(patch, encodeVLQ(uint64(len(src)))...)
	patch = append(patch, encodeVLQ(uint64(len(tgt)))...)
	patch = append(patch, encodeVLQ(0)...) // no metadata
	patch = append(patch, body...)

	srcSum := crc32.ChecksumIEEE(src)
	tgtSum := crc32.ChecksumIEEE(tgt)
	patch = appendU32LE(patch, srcSum)
	patch = appendU32LE(patch, tgtSum)

	patchSum := crc32.ChecksumIEEE(patch)
	patch = appendU32LE(patch, patchSum)

	return patch
}

func encodeVLQ(v uint64) []byte {
	var out []byte
	for {
		x := v & 0x7f
		v >>= 7
		if v == 0 {
			out = append(out, byte(x|0x80))
			return out
		}
		out = append(out, byte(x))
		v--
	}
}

func appendU32LE(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func TestApplyReplacesWholeBuffer(t *testing.T) {
	src := []byte("old-rom-contents")
	tgt := []byte("new-rom-contents")

	patch := buildPatch(t, src, tgt)

	out, err := bps.Apply(src, patch)
	require.NoError(t, err)
	require.Equal(t, tgt, out)
}

func TestApplyRejectsWrongSource(t *testing.T) {
	src := []byte("old-rom-contents")
	tgt := []byte("new-rom-contents")
	patch := buildPatch(t, src, tgt)

	_, err := bps.Apply([]byte("different-source"), patch)
	require.ErrorIs(t, err, bps.ErrInvalidSourceChecksum)
}

func TestApplyRejectsCorruptPatch(t *testing.T) {
	src := []byte("old-rom-contents")
	tgt := []byte("new-rom-contents")
	patch := buildPatch(t, src, tgt)
	patch[5] ^= 0xff

	_, err := bps.Apply(src, patch)
	require.Error(t, err)
}
