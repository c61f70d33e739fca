// Package binario provides small little-endian binary readers and writers
// used by the wire codec, the signaling envelope, and the replay format.
package binario

import (
	"encoding/binary"
	"io"
)

// Writer accumulates little-endian fields, joining write errors so callers
// can issue a sequence of writes and check a single error at the end.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) writeAll(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

func (w *Writer) WriteUint8(v uint8) {
	w.writeAll([]byte{v})
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.writeAll(b[:])
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.writeAll(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.writeAll(b[:])
}

func (w *Writer) WriteInt8(v int8) {
	w.WriteUint8(uint8(v))
}

func (w *Writer) WriteBytes(p []byte) {
	w.writeAll(p)
}

// WriteBytesWithLen writes a u32 length prefix followed by the bytes.
func (w *Writer) WriteBytesWithLen(p []byte) {
	w.WriteUint32(uint32(len(p)))
	w.writeAll(p)
}

// Reader reads little-endian fields, recording the first error encountered
// so a chain of reads can be checked once at the end.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readAll(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.r, p)
}

func (r *Reader) ReadUint8() uint8 {
	var b [1]byte
	r.readAll(b[:])
	return b[0]
}

func (r *Reader) ReadUint16() uint16 {
	var b [2]byte
	r.readAll(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func (r *Reader) ReadUint32() uint32 {
	var b [4]byte
	r.readAll(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (r *Reader) ReadUint64() uint64 {
	var b [8]byte
	r.readAll(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (r *Reader) ReadInt8() int8 {
	return int8(r.ReadUint8())
}

func (r *Reader) ReadBytes(n int) []byte {
	p := make([]byte, n)
	r.readAll(p)
	return p
}

// ReadBytesWithLen reads a u32 length prefix followed by that many bytes.
func (r *Reader) ReadBytesWithLen() []byte {
	n := r.ReadUint32()
	if r.err != nil {
		return nil
	}
	return r.ReadBytes(int(n))
}
