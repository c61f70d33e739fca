// Package transport is the WebRTC-backed implementation of
// datachannel.DataChannel, built on github.com/pion/webrtc/v3: a
// PeerConnection that emits connection signals (local description, ICE
// candidates, state changes) on a channel instead of callbacks, plus a
// DataChannel that turns pion's OnMessage/OnOpen callbacks into blocking
// Send/Receive calls.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/tangobattle/tango-core/datachannel"
	"github.com/tangobattle/tango-core/internal/logging"
)

var log = logging.New("transport")

// ErrPeerConnectionClosed is returned by PeerConnection methods called
// after Close.
var ErrPeerConnectionClosed = errors.New("transport: peer connection closed")

// DefaultICEServers mirrors the public STUN-only configuration most peers
// behind NAT need to discover a reflexive candidate; a relay/TURN server
// is added by the caller when the rendezvous server hands one out.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// SignalKind discriminates the variants of Signal.
type SignalKind int

const (
	SignalLocalDescription SignalKind = iota
	SignalICECandidate
	SignalConnectionStateChange
)

// Signal is one asynchronous event a PeerConnection reports while
// negotiating, decoupling pion's callback-based API from the rest of the
// module's blocking, context-driven style.
type Signal struct {
	Kind            SignalKind
	Description     webrtc.SessionDescription
	Candidate       webrtc.ICECandidateInit
	ConnectionState webrtc.PeerConnectionState
}

// PeerConnection wraps a pion RTCPeerConnection, exposing the subset of its
// surface a netplay session driver needs: creating the single outgoing
// data channel, accepting the peer's incoming one, and driving SDP/ICE
// exchange through the signaling client.
type PeerConnection struct {
	pc *webrtc.PeerConnection

	signals chan Signal
	accept  chan *DataChannel

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPeerConnection constructs a PeerConnection using iceServers, or
// DefaultICEServers if nil.
func NewPeerConnection(iceServers []webrtc.ICEServer) (*PeerConnection, error) {
	if iceServers == nil {
		iceServers = DefaultICEServers
	}

	raw, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("transport: new peer connection: %w", err)
	}

	p := &PeerConnection{
		pc:      raw,
		signals: make(chan Signal, 16),
		accept:  make(chan *DataChannel, 1),
		closed:  make(chan struct{}),
	}

	raw.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.emit(Signal{Kind: SignalICECandidate, Candidate: c.ToJSON()})
	})
	raw.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info("transport: connection state changed to %s", s)
		p.emit(Signal{Kind: SignalConnectionStateChange, ConnectionState: s})
	})
	raw.OnDataChannel(func(dc *webrtc.DataChannel) {
		wrapped := newDataChannel(dc)
		select {
		case p.accept <- wrapped:
		case <-p.closed:
		}
	})

	return p, nil
}

func (p *PeerConnection) emit(s Signal) {
	select {
	case p.signals <- s:
	case <-p.closed:
	default:
		log.Warn("transport: signal channel full, dropping %v", s.Kind)
	}
}

// Signals returns the channel PeerConnectionSignal events are delivered on.
func (p *PeerConnection) Signals() <-chan Signal { return p.signals }

// CreateDataChannel opens the one reliable, ordered data channel the
// lockstep protocol runs over; unreliable/unordered mode is never used.
func (p *PeerConnection) CreateDataChannel(label string) (*DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("transport: create data channel: %w", err)
	}
	return newDataChannel(dc), nil
}

// Accept blocks until the peer opens its data channel or ctx is cancelled.
func (p *PeerConnection) Accept(ctx context.Context) (*DataChannel, error) {
	select {
	case dc := <-p.accept:
		return dc, nil
	case <-p.closed:
		return nil, ErrPeerConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateOffer creates and sets the local offer, emitting it as a Signal.
func (p *PeerConnection) CreateOffer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	return p.setLocalDescription(offer)
}

// CreateAnswer creates and sets the local answer after a remote offer has
// been applied via SetRemoteDescription.
func (p *PeerConnection) CreateAnswer() error {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("transport: create answer: %w", err)
	}
	return p.setLocalDescription(answer)
}

func (p *PeerConnection) setLocalDescription(desc webrtc.SessionDescription) error {
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	p.emit(Signal{Kind: SignalLocalDescription, Description: desc})
	return nil
}

// SetRemoteDescription applies the peer's offer or answer.
func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	return nil
}

// AddICECandidate feeds one trickled remote candidate into the connection.
func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("transport: add ice candidate: %w", err)
	}
	return nil
}

// Close tears down the underlying peer connection.
func (p *PeerConnection) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.pc.Close()
	})
	return err
}

// DataChannel adapts a pion *webrtc.DataChannel to the blocking
// datachannel.DataChannel contract the rest of the module expects.
type DataChannel struct {
	dc *webrtc.DataChannel

	ready  chan struct{}
	msgs   chan []byte
	closed chan struct{}

	closeOnce sync.Once
}

func newDataChannel(dc *webrtc.DataChannel) *DataChannel {
	d := &DataChannel{
		dc:     dc,
		ready:  make(chan struct{}),
		msgs:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}

	dc.OnOpen(func() {
		close(d.ready)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case d.msgs <- msg.Data:
		case <-d.closed:
		}
	})
	dc.OnClose(func() {
		d.closeOnce.Do(func() { close(d.closed) })
	})

	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		select {
		case <-d.ready:
		default:
			close(d.ready)
		}
	}

	return d
}

// Send writes msg once the channel is open, respecting the message size
// ceiling.
func (d *DataChannel) Send(ctx context.Context, msg []byte) error {
	if len(msg) > datachannel.MaxMessageSize {
		return fmt.Errorf("transport: message too large: %d bytes", len(msg))
	}

	select {
	case <-d.ready:
	case <-d.closed:
		return datachannel.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := d.dc.Send(msg); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Receive blocks for the next inbound message, returning (nil, nil) once
// the channel closes cleanly.
func (d *DataChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-d.msgs:
		return msg, nil
	case <-d.closed:
		select {
		case msg := <-d.msgs:
			return msg, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Split satisfies datachannel.DataChannel; a *DataChannel already allows
// disjoint Send/Receive callers since only one owns the receive loop.
func (d *DataChannel) Split() (datachannel.Sender, datachannel.Receiver) {
	return d, d
}

// Close closes the underlying RTCDataChannel.
func (d *DataChannel) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return d.dc.Close()
}

var _ datachannel.DataChannel = (*DataChannel)(nil)
