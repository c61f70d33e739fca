// Package match coordinates a sequence of rounds over one data channel
// connection: it dispatches inbound packets to the round in progress,
// answers keepalive pings, and tracks round-trip time.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tangobattle/tango-core/datachannel"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/logging"
	"github.com/tangobattle/tango-core/internal/metrics"
	"github.com/tangobattle/tango-core/packet"
	"github.com/tangobattle/tango-core/round"
)

// ErrProtocolViolation is returned from the receive loop when the peer
// sends a message that makes no sense in the current state.
var ErrProtocolViolation = errors.New("match: protocol violation")

var log = logging.New("match")

// RoundReceiver is the subset of *round.Round the receive loop drives.
type RoundReceiver interface {
	AddRemoteInput(in input.Input) error
}

// Match owns one peer connection across however many rounds the session
// plays. It does not own round construction — that is round rotation
// logic the caller (e.g. a UI-facing session driver) performs by calling
// SetCurrentRound once it has built the next round.
type Match struct {
	dc           datachannel.DataChannel
	sessionLabel string
	packetSize   int

	roundNumber atomic.Uint32 // low 8 bits are the wire RoundNumber

	mu            sync.Mutex
	current       RoundReceiver
	shadowWonLast bool
	pingSentAt    map[uint64]time.Time
	nextPingTS    uint64

	smuggleCh chan []byte
	initCh    chan packet.Init
}

// New constructs a Match bound to an already-negotiated data channel.
func New(dc datachannel.DataChannel, sessionLabel string, packetSize int) *Match {
	return &Match{
		dc:           dc,
		sessionLabel: sessionLabel,
		packetSize:   packetSize,
		pingSentAt:   make(map[uint64]time.Time),
		smuggleCh:    make(chan []byte, 32),
		initCh:       make(chan packet.Init, 4),
	}
}

// SetCurrentRound swaps in the round that inbound Input messages should be
// forwarded to, and records the round number that tags its wire traffic
// along with whether the shadow won the previous round.
func (m *Match) SetCurrentRound(r RoundReceiver, roundNumber uint8, shadowWonLastRound bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = r
	m.shadowWonLast = shadowWonLastRound
	m.roundNumber.Store(uint32(roundNumber))
}

// ShadowWonLastRound returns the shadowWonLastRound value most recently
// passed to SetCurrentRound. Match itself does not act on it.
func (m *Match) ShadowWonLastRound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shadowWonLast
}

// Smuggle returns the channel on which out-of-band Smuggle payloads
// arrive — used for things like save-data synchronization that ride the
// same data channel but outside the round protocol.
func (m *Match) Smuggle() <-chan []byte { return m.smuggleCh }

// Init returns the channel of buffered Init messages; a round consumes
// these during its InitExchange state.
func (m *Match) Init() <-chan packet.Init { return m.initCh }

// SendInput transmits one local input tick to the peer. TickDiff encodes
// the local/remote tick skew in a single signed byte rather than a second
// full tick counter, since the two stay within a handful of ticks of each
// other under normal play.
func (m *Match) SendInput(ctx context.Context, in input.Input) error {
	diff := int64(in.LocalTick) - int64(in.RemoteTick)
	return m.send(ctx, packet.InputMessage(packet.InputMsg{
		RoundNumber: uint8(m.roundNumber.Load()),
		LocalTick:   in.LocalTick,
		TickDiff:    int8(diff),
		Joyflags:    in.Joyflags,
		Packet:      in.Packet,
	}))
}

// SendInit transmits the local side's round-start init blob, tagged with
// the current round number.
func (m *Match) SendInit(ctx context.Context, init packet.Init) error {
	init.RoundNumber = uint8(m.roundNumber.Load())
	return m.send(ctx, packet.InitMessage(init))
}

// SendSmuggle forwards an arbitrary out-of-band payload to the peer.
func (m *Match) SendSmuggle(ctx context.Context, data []byte) error {
	return m.send(ctx, packet.SmuggleMessage(packet.Smuggle{Payload: data}))
}

// Ping sends a keepalive/RTT probe and records its send time.
func (m *Match) Ping(ctx context.Context) error {
	m.mu.Lock()
	ts := m.nextPingTS
	m.nextPingTS++
	m.pingSentAt[ts] = time.Now()
	m.mu.Unlock()

	return m.send(ctx, packet.PingMessage(packet.Ping{TS: ts}))
}

func (m *Match) send(ctx context.Context, msg packet.Message) error {
	encoded, err := packet.Encode(msg)
	if err != nil {
		return fmt.Errorf("match: encode: %w", err)
	}
	return m.dc.Send(ctx, encoded)
}

// Run drives the receive loop until the context is canceled or the data
// channel closes. Connection loss during a match is fatal; this layer does
// not attempt reconnection.
func (m *Match) Run(ctx context.Context) error {
	for {
		raw, err := m.dc.Receive(ctx)
		if err != nil {
			return fmt.Errorf("match: receive: %w", err)
		}
		if raw == nil {
			return datachannel.ErrClosed
		}

		msg, err := packet.Decode(raw, m.packetSize)
		if err != nil {
			return fmt.Errorf("match: decode: %w", err)
		}

		if err := m.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

func (m *Match) dispatch(ctx context.Context, msg packet.Message) error {
	switch {
	case msg.Input != nil:
		m.mu.Lock()
		cur := m.current
		m.mu.Unlock()
		if cur == nil {
			return fmt.Errorf("%w: input before round started", ErrProtocolViolation)
		}
		if msg.Input.RoundNumber != uint8(m.roundNumber.Load()) {
			log.Warn("match %s: dropping input for round %d, current round is %d", m.sessionLabel, msg.Input.RoundNumber, uint8(m.roundNumber.Load()))
			return nil
		}
		remoteTick := uint32(int64(msg.Input.LocalTick) - int64(msg.Input.TickDiff))
		return cur.AddRemoteInput(input.Input{
			LocalTick:  msg.Input.LocalTick,
			RemoteTick: remoteTick,
			Joyflags:   msg.Input.Joyflags,
			Packet:     msg.Input.Packet,
		})

	case msg.Init != nil:
		select {
		case m.initCh <- *msg.Init:
		default:
			log.Warn("match %s: init channel full, dropping", m.sessionLabel)
		}
		return nil

	case msg.Ping != nil:
		return m.send(ctx, packet.PongMessage(packet.Pong{TS: msg.Ping.TS}))

	case msg.Pong != nil:
		m.mu.Lock()
		sentAt, ok := m.pingSentAt[msg.Pong.TS]
		if ok {
			delete(m.pingSentAt, msg.Pong.TS)
		}
		m.mu.Unlock()
		if ok {
			rtt := time.Since(sentAt)
			metrics.RTTMillis.WithLabelValues(m.sessionLabel).Set(float64(rtt.Milliseconds()))
			log.Debug("match %s: rtt=%s", m.sessionLabel, rtt)
		}
		return nil

	case msg.Smuggle != nil:
		select {
		case m.smuggleCh <- msg.Smuggle.Payload:
		default:
			log.Warn("match %s: smuggle channel full, dropping", m.sessionLabel)
		}
		return nil

	default:
		return fmt.Errorf("%w: unexpected message tag %v", ErrProtocolViolation, msg.Tag())
	}
}

// compile-time assertion that *round.Round satisfies the dispatch target.
var _ RoundReceiver = (*round.Round)(nil)
