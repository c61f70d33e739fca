// Package signaling implements the rendezvous client: a websocket
// connection to a matchmaking server that hands out ICE servers, pairs
// two peers under the same session id, and relays the SDP offer/answer
// each side needs to start WebRTC negotiation.
//
// The wire format here is a hand-rolled tag+length binary envelope rather
// than protobuf, since protoc isn't available to generate bindings in
// this environment (see DESIGN.md).
package signaling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tangobattle/tango-core/internal/binario"
	"github.com/tangobattle/tango-core/internal/logging"
)

var log = logging.New("signaling")

// ProtocolVersion is sent in the Start message and as a request header so
// the server can reject mismatched clients before the websocket upgrade
// even completes.
const ProtocolVersion uint32 = 0x01

type Tag uint8

const (
	TagHello  Tag = 0x01
	TagStart  Tag = 0x02
	TagOffer  Tag = 0x03
	TagAnswer Tag = 0x04
	TagAbort  Tag = 0x05
)

// AbortReason is why the server refused or terminated a session.
type AbortReason uint8

const (
	AbortUnknown               AbortReason = 0
	AbortMissingSessionID      AbortReason = 1
	AbortNotUpgrade            AbortReason = 2
	AbortProtocolVersionTooOld AbortReason = 3
	AbortProtocolVersionTooNew AbortReason = 4
)

func (r AbortReason) String() string {
	switch r {
	case AbortMissingSessionID:
		return "missing session id"
	case AbortNotUpgrade:
		return "not a websocket upgrade"
	case AbortProtocolVersionTooOld:
		return "protocol version too old"
	case AbortProtocolVersionTooNew:
		return "protocol version too new"
	default:
		return "unknown"
	}
}

// ICEServer is one STUN/TURN server the signaling server hands out in its
// Hello message.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Hello is the first message the server always sends.
type Hello struct {
	ICEServers []ICEServer
}

// Start is the first message the client sends: its protocol version and
// its local SDP offer.
type Start struct {
	ProtocolVersion uint32
	OfferSDP        string
}

// Offer is relayed to the second peer to join a session, carrying the
// first peer's SDP offer.
type Offer struct {
	SDP string
}

// Answer is relayed back to the first peer once the second has produced
// an SDP answer.
type Answer struct {
	SDP string
}

// Abort is sent by the server instead of any other message when it
// refuses the session.
type Abort struct {
	Reason AbortReason
}

// Envelope is the decoded form of any one signaling message. Exactly one
// field is non-nil.
type Envelope struct {
	Hello  *Hello
	Start  *Start
	Offer  *Offer
	Answer *Answer
	Abort  *Abort
}

var (
	ErrUnknownTag = errors.New("signaling: unknown tag")
	ErrTruncated  = errors.New("signaling: truncated message")
)

func (e Envelope) tag() Tag {
	switch {
	case e.Hello != nil:
		return TagHello
	case e.Start != nil:
		return TagStart
	case e.Offer != nil:
		return TagOffer
	case e.Answer != nil:
		return TagAnswer
	case e.Abort != nil:
		return TagAbort
	default:
		panic("signaling: empty envelope")
	}
}

// Encode serializes e into its wire form: a tag byte followed by its
// payload, all multi-byte fields little-endian.
func Encode(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.tag()))
	w := binario.NewWriter(&buf)

	switch e.tag() {
	case TagHello:
		w.WriteUint32(uint32(len(e.Hello.ICEServers)))
		for _, s := range e.Hello.ICEServers {
			w.WriteUint32(uint32(len(s.URLs)))
			for _, u := range s.URLs {
				w.WriteBytesWithLen([]byte(u))
			}
			w.WriteBytesWithLen([]byte(s.Username))
			w.WriteBytesWithLen([]byte(s.Credential))
		}
	case TagStart:
		w.WriteUint32(e.Start.ProtocolVersion)
		w.WriteBytesWithLen([]byte(e.Start.OfferSDP))
	case TagOffer:
		w.WriteBytesWithLen([]byte(e.Offer.SDP))
	case TagAnswer:
		w.WriteBytesWithLen([]byte(e.Answer.SDP))
	case TagAbort:
		w.WriteUint8(uint8(e.Abort.Reason))
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownTag, e.tag())
	}

	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a wire envelope.
func Decode(data []byte) (Envelope, error) {
	if len(data) < 1 {
		return Envelope{}, ErrTruncated
	}
	tag := Tag(data[0])
	r := binario.NewReader(bytes.NewReader(data[1:]))

	var e Envelope
	switch tag {
	case TagHello:
		h := Hello{}
		n := r.ReadUint32()
		h.ICEServers = make([]ICEServer, 0, n)
		for i := uint32(0); i < n; i++ {
			s := ICEServer{}
			nu := r.ReadUint32()
			s.URLs = make([]string, 0, nu)
			for j := uint32(0); j < nu; j++ {
				s.URLs = append(s.URLs, string(r.ReadBytesWithLen()))
			}
			s.Username = string(r.ReadBytesWithLen())
			s.Credential = string(r.ReadBytesWithLen())
			h.ICEServers = append(h.ICEServers, s)
		}
		e = Envelope{Hello: &h}
	case TagStart:
		s := Start{}
		s.ProtocolVersion = r.ReadUint32()
		s.OfferSDP = string(r.ReadBytesWithLen())
		e = Envelope{Start: &s}
	case TagOffer:
		e = Envelope{Offer: &Offer{SDP: string(r.ReadBytesWithLen())}}
	case TagAnswer:
		e = Envelope{Answer: &Answer{SDP: string(r.ReadBytesWithLen())}}
	case TagAbort:
		e = Envelope{Abort: &Abort{Reason: AbortReason(r.ReadUint8())}}
	default:
		return Envelope{}, fmt.Errorf("%w: %#x", ErrUnknownTag, tag)
	}

	if err := r.Err(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return e, nil
}

// ErrAborted wraps the reason a server gave for refusing a session.
type ErrAborted struct {
	Reason AbortReason
}

func (e *ErrAborted) Error() string {
	return fmt.Sprintf("signaling: server aborted: %s", e.Reason)
}

// ErrUnexpectedEnvelope is returned when a message arrives out of the
// expected Hello -> Offer|Answer sequence.
var ErrUnexpectedEnvelope = errors.New("signaling: unexpected envelope")

// Conn is one connected, pending-or-joined signaling session.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to the signaling server at addr (ws:// or wss://),
// registers under sessionID, and waits for the server's Hello.
func Dial(ctx context.Context, addr, sessionID string) (*Conn, *Hello, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("signaling: parse url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("User-Agent", "tango-core-signaling")
	header.Set("X-Tango-Protocol-Version", fmt.Sprintf("%x", ProtocolVersion))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			return nil, nil, &ErrAborted{Reason: AbortMissingSessionID}
		}
		return nil, nil, fmt.Errorf("signaling: dial: %w", err)
	}

	c := &Conn{ws: ws}

	env, err := c.receive(ctx)
	if err != nil {
		ws.Close()
		return nil, nil, err
	}
	if env.Abort != nil {
		ws.Close()
		return nil, nil, &ErrAborted{Reason: env.Abort.Reason}
	}
	if env.Hello == nil {
		ws.Close()
		return nil, nil, ErrUnexpectedEnvelope
	}

	return c, env.Hello, nil
}

// Start sends the local SDP offer and protocol version, the client's only
// outbound message before it learns its role: the first peer to reach the
// server with a given session id becomes the offerer once a second peer
// joins; the second peer receives the Offer immediately.
func (c *Conn) Start(offerSDP string) error {
	return c.send(Envelope{Start: &Start{ProtocolVersion: ProtocolVersion, OfferSDP: offerSDP}})
}

// Next blocks for the next Offer or Answer relayed by the server, or the
// abort/close that ends the session.
func (c *Conn) Next(ctx context.Context) (Envelope, error) {
	env, err := c.receive(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if env.Abort != nil {
		return Envelope{}, &ErrAborted{Reason: env.Abort.Reason}
	}
	return env, nil
}

// SendAnswer relays the joining peer's SDP answer back through the server.
func (c *Conn) SendAnswer(sdp string) error {
	return c.send(Envelope{Answer: &Answer{SDP: sdp}})
}

func (c *Conn) send(e Envelope) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Conn) receive(ctx context.Context) (Envelope, error) {
	type result struct {
		env Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			kind, data, err := c.ws.ReadMessage()
			if err != nil {
				ch <- result{err: fmt.Errorf("signaling: read: %w", err)}
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			env, err := Decode(data)
			ch <- result{env: env, err: err}
			return
		}
	}()

	select {
	case r := <-ch:
		return r.env, r.err
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	log.Info("signaling: closing connection")
	return c.ws.Close()
}
