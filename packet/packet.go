// Package packet implements the Tango wire codec: framing and parsing of
// the tagged message set exchanged over the data channel.
//
// Every message is encoded as a single tag byte followed by its payload;
// the data channel itself is message-framed, so no outer length prefix is
// needed. All multi-byte numeric fields are little-endian.
package packet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tangobattle/tango-core/internal/binario"
)

type Tag uint8

const (
	TagHello   Tag = 0x01
	TagHola    Tag = 0x02
	TagInit    Tag = 0x03
	TagInput   Tag = 0x04
	TagPing    Tag = 0x05
	TagPong    Tag = 0x06
	TagSmuggle Tag = 0x07
)

var (
	ErrUnknownTag      = errors.New("packet: unknown tag")
	ErrTruncated       = errors.New("packet: truncated message")
	ErrVersionMismatch = errors.New("packet: version mismatch")
)

// GameInfo identifies the ROM revision a peer claims to be running.
type GameInfo struct {
	Family   string
	Variant  uint8
	Revision uint8
	RomCRC32 uint32
}

// MatchType is the (mode, subtype) tuple both sides must agree on before a
// match can start.
type MatchType [2]uint8

type Hello struct {
	ProtocolVersion uint8
	MatchType       MatchType
	GameInfo        GameInfo
	RNGCommitment   [32]byte
	InputDelay      uint32
}

type Hola struct {
	RNGNonce [16]byte
}

type Init struct {
	RoundNumber uint8
	InputDelay  uint8
	Marshaled   []byte
}

type InputMsg struct {
	RoundNumber uint8
	LocalTick   uint32
	TickDiff    int8
	Joyflags    uint16
	Packet      []byte
}

type Ping struct {
	TS uint64
}

type Pong struct {
	TS uint64
}

type Smuggle struct {
	Payload []byte
}

// Message is the decoded form of any one wire packet. Exactly one field is
// non-nil.
type Message struct {
	Hello   *Hello
	Hola    *Hola
	Init    *Init
	Input   *InputMsg
	Ping    *Ping
	Pong    *Pong
	Smuggle *Smuggle
}

func (m Message) Tag() Tag {
	switch {
	case m.Hello != nil:
		return TagHello
	case m.Hola != nil:
		return TagHola
	case m.Init != nil:
		return TagInit
	case m.Input != nil:
		return TagInput
	case m.Ping != nil:
		return TagPing
	case m.Pong != nil:
		return TagPong
	case m.Smuggle != nil:
		return TagSmuggle
	default:
		panic("packet: empty message")
	}
}

func HelloMessage(h Hello) Message     { return Message{Hello: &h} }
func HolaMessage(h Hola) Message       { return Message{Hola: &h} }
func InitMessage(i Init) Message       { return Message{Init: &i} }
func InputMessage(i InputMsg) Message  { return Message{Input: &i} }
func PingMessage(p Ping) Message       { return Message{Ping: &p} }
func PongMessage(p Pong) Message       { return Message{Pong: &p} }
func SmuggleMessage(s Smuggle) Message { return Message{Smuggle: &s} }

// Encode serializes m into its wire form: a tag byte followed by its payload.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Tag()))
	w := binario.NewWriter(&buf)

	switch m.Tag() {
	case TagHello:
		h := m.Hello
		w.WriteUint8(h.ProtocolVersion)
		w.WriteUint8(h.MatchType[0])
		w.WriteUint8(h.MatchType[1])
		w.WriteBytesWithLen([]byte(h.GameInfo.Family))
		w.WriteUint8(h.GameInfo.Variant)
		w.WriteUint8(h.GameInfo.Revision)
		w.WriteUint32(h.GameInfo.RomCRC32)
		w.WriteBytes(h.RNGCommitment[:])
		w.WriteUint32(h.InputDelay)
	case TagHola:
		w.WriteBytes(m.Hola.RNGNonce[:])
	case TagInit:
		i := m.Init
		w.WriteUint8(i.RoundNumber)
		w.WriteUint8(i.InputDelay)
		w.WriteBytesWithLen(i.Marshaled)
	case TagInput:
		in := m.Input
		w.WriteUint8(in.RoundNumber)
		w.WriteUint32(in.LocalTick)
		w.WriteInt8(in.TickDiff)
		w.WriteUint16(in.Joyflags)
		w.WriteBytes(in.Packet)
	case TagPing:
		w.WriteUint64(m.Ping.TS)
	case TagPong:
		w.WriteUint64(m.Pong.TS)
	case TagSmuggle:
		w.WriteBytesWithLen(m.Smuggle.Payload)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownTag, m.Tag())
	}

	if err := w.Err(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a wire message. packetSize is the per-game fixed turn
// packet length; it is only consulted for TagInput.
func Decode(data []byte, packetSize int) (Message, error) {
	if len(data) < 1 {
		return Message{}, ErrTruncated
	}

	tag := Tag(data[0])
	r := binario.NewReader(bytes.NewReader(data[1:]))

	var m Message

	switch tag {
	case TagHello:
		h := Hello{}
		h.ProtocolVersion = r.ReadUint8()
		h.MatchType[0] = r.ReadUint8()
		h.MatchType[1] = r.ReadUint8()
		h.GameInfo.Family = string(r.ReadBytesWithLen())
		h.GameInfo.Variant = r.ReadUint8()
		h.GameInfo.Revision = r.ReadUint8()
		h.GameInfo.RomCRC32 = r.ReadUint32()
		copy(h.RNGCommitment[:], r.ReadBytes(32))
		h.InputDelay = r.ReadUint32()
		m = HelloMessage(h)
	case TagHola:
		ho := Hola{}
		copy(ho.RNGNonce[:], r.ReadBytes(16))
		m = HolaMessage(ho)
	case TagInit:
		i := Init{}
		i.RoundNumber = r.ReadUint8()
		i.InputDelay = r.ReadUint8()
		i.Marshaled = r.ReadBytesWithLen()
		m = InitMessage(i)
	case TagInput:
		in := InputMsg{}
		in.RoundNumber = r.ReadUint8()
		in.LocalTick = r.ReadUint32()
		in.TickDiff = r.ReadInt8()
		in.Joyflags = r.ReadUint16()
		in.Packet = r.ReadBytes(packetSize)
		m = InputMessage(in)
	case TagPing:
		m = PingMessage(Ping{TS: r.ReadUint64()})
	case TagPong:
		m = PongMessage(Pong{TS: r.ReadUint64()})
	case TagSmuggle:
		m = SmuggleMessage(Smuggle{Payload: r.ReadBytesWithLen()})
	default:
		return Message{}, fmt.Errorf("%w: %#x", ErrUnknownTag, tag)
	}

	if err := r.Err(); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	return m, nil
}
