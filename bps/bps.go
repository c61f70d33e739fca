// Package bps implements the BPS binary patch format: a
// VLQ-encoded instruction stream that transforms a source ROM into a
// target ROM, checksummed at every stage with CRC32.
package bps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var (
	ErrInvalidHeader         = errors.New("bps: invalid header")
	ErrUnexpectedPatchEOF    = errors.New("bps: unexpected patch eof")
	ErrInvalidPatchChecksum  = errors.New("bps: invalid patch checksum")
	ErrInvalidSourceChecksum = errors.New("bps: invalid source checksum")
	ErrInvalidTargetChecksum = errors.New("bps: invalid target checksum")
	ErrInvalidLength         = errors.New("bps: invalid source length")
	ErrInvalidAction         = errors.New("bps: invalid action")
	ErrTruncated             = errors.New("bps: truncated instruction stream")
)

var header = [4]byte{'B', 'P', 'S', '1'}

const (
	actionSourceRead = 0
	actionTargetRead = 1
	actionSourceCopy = 2
	actionTargetCopy = 3
)

// Patch is a decoded BPS patch ready to apply to a matching source buffer.
type Patch struct {
	SourceChecksum uint32
	TargetChecksum uint32
	PatchChecksum  uint32
	SourceSize     int
	TargetSize     int
	Metadata       []byte
	body           []byte
}

// vlqReader reads the variable-length quantities BPS uses for sizes and
// relative offsets, tracking its position in a byte slice directly rather
// than through io.Reader since instructions need to know how many bytes
// they consumed.
type vlqReader struct {
	buf []byte
	pos int
}

func (r *vlqReader) readByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}

func (r *vlqReader) readVLQ() (uint64, error) {
	var data, shift uint64 = 0, 1
	for {
		x, ok := r.readByte()
		if !ok {
			return 0, ErrTruncated
		}
		data += uint64(x&0x7f) * shift
		if x&0x80 != 0 {
			break
		}
		shift <<= 7
		data += shift
	}
	return data, nil
}

func (r *vlqReader) readSignedVLQ() (int64, error) {
	v, err := r.readVLQ()
	if err != nil {
		return 0, err
	}
	mag := int64(v >> 1)
	if v&1 != 0 {
		return -mag, nil
	}
	return mag, nil
}

// Decode parses a BPS patch from its on-disk form.
func Decode(raw []byte) (*Patch, error) {
	if len(raw) < 4+12 {
		return nil, ErrUnexpectedPatchEOF
	}

	actualPatchChecksum := crc32.ChecksumIEEE(raw[:len(raw)-4])

	if [4]byte(raw[:4]) != header {
		return nil, ErrInvalidHeader
	}

	footer := raw[len(raw)-12:]
	sourceChecksum := binary.LittleEndian.Uint32(footer[0:4])
	targetChecksum := binary.LittleEndian.Uint32(footer[4:8])
	patchChecksum := binary.LittleEndian.Uint32(footer[8:12])
	if patchChecksum != actualPatchChecksum {
		return nil, fmt.Errorf("%w: expected %#x, got %#x", ErrInvalidPatchChecksum, patchChecksum, actualPatchChecksum)
	}

	vr := &vlqReader{buf: raw[4:]}
	sourceSize, err := vr.readVLQ()
	if err != nil {
		return nil, err
	}
	targetSize, err := vr.readVLQ()
	if err != nil {
		return nil, err
	}
	metadataSize, err := vr.readVLQ()
	if err != nil {
		return nil, err
	}

	metaStart := 4 + vr.pos
	metaEnd := metaStart + int(metadataSize)
	bodyEnd := len(raw) - 12
	if metaEnd > bodyEnd {
		return nil, ErrUnexpectedPatchEOF
	}

	return &Patch{
		SourceChecksum: sourceChecksum,
		TargetChecksum: targetChecksum,
		PatchChecksum:  patchChecksum,
		SourceSize:     int(sourceSize),
		TargetSize:     int(targetSize),
		Metadata:       raw[metaStart:metaEnd],
		body:           raw[metaEnd:bodyEnd],
	}, nil
}

// Apply transforms src into the patch's target buffer, verifying every
// checksum the format defines.
func (p *Patch) Apply(src []byte) ([]byte, error) {
	if p.SourceChecksum != crc32.ChecksumIEEE(src) {
		return nil, ErrInvalidSourceChecksum
	}
	if p.SourceSize != len(src) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidLength, p.SourceSize, len(src))
	}

	tgt := make([]byte, p.TargetSize)

	vr := &vlqReader{buf: p.body}
	var tgtOffset, srcRelOffset, tgtRelOffset int

	for vr.pos < len(vr.buf) {
		instr, err := vr.readVLQ()
		if err != nil {
			return nil, err
		}
		action := int(instr & 3)
		length := int(instr>>2) + 1

		tgtStart := tgtOffset
		tgtOffset += length
		if tgtOffset > len(tgt) {
			return nil, errUnexpectedTargetEOF(tgtOffset, len(tgt))
		}

		switch action {
		case actionSourceRead:
			if tgtOffset > len(src) {
				return nil, fmt.Errorf("bps: source read past end: %d > %d", tgtOffset, len(src))
			}
			copy(tgt[tgtStart:tgtOffset], src[tgtStart:tgtOffset])

		case actionTargetRead:
			if vr.pos+length > len(vr.buf) {
				return nil, ErrTruncated
			}
			copy(tgt[tgtStart:tgtOffset], vr.buf[vr.pos:vr.pos+length])
			vr.pos += length

		case actionSourceCopy:
			delta, err := vr.readSignedVLQ()
			if err != nil {
				return nil, err
			}
			srcRelOffset += int(delta)
			if srcRelOffset < 0 || srcRelOffset+length > len(src) {
				return nil, fmt.Errorf("bps: source copy out of range")
			}
			copy(tgt[tgtStart:tgtOffset], src[srcRelOffset:srcRelOffset+length])
			srcRelOffset += length

		case actionTargetCopy:
			delta, err := vr.readSignedVLQ()
			if err != nil {
				return nil, err
			}
			tgtRelOffset += int(delta)
			if tgtRelOffset < 0 {
				return nil, fmt.Errorf("bps: target copy out of range")
			}
			// Byte by byte: newer output bytes may reference ones just
			// written earlier in this same instruction.
			for i := 0; i < length; i++ {
				if tgtRelOffset+i >= len(tgt) || tgtStart+i >= len(tgt) {
					return nil, errUnexpectedTargetEOF(tgtStart+i, len(tgt))
				}
				tgt[tgtStart+i] = tgt[tgtRelOffset+i]
			}
			tgtRelOffset += length

		default:
			return nil, fmt.Errorf("%w: %d", ErrInvalidAction, action)
		}
	}

	if p.TargetChecksum != crc32.ChecksumIEEE(tgt) {
		return nil, ErrInvalidTargetChecksum
	}

	return tgt, nil
}

// Apply is a convenience wrapper that decodes patch and applies it to src
// in one call.
func Apply(src, patch []byte) ([]byte, error) {
	p, err := Decode(patch)
	if err != nil {
		return nil, err
	}
	return p.Apply(src)
}

func errUnexpectedTargetEOF(got, max int) error {
	return fmt.Errorf("bps: unexpected target eof: offset %d, size %d", got, max)
}
