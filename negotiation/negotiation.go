// Package negotiation runs the commit-reveal handshake that both peers
// perform once after the data channel opens.
package negotiation

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"

	"github.com/tangobattle/tango-core/datachannel"
	"github.com/tangobattle/tango-core/internal/logging"
	"github.com/tangobattle/tango-core/packet"
	"github.com/tangobattle/tango-core/rng"
)

const ProtocolVersion uint8 = 0x3a

var (
	ErrProtocolVersionMismatch = errors.New("negotiation: protocol version mismatch")
	ErrMatchTypeMismatch       = errors.New("negotiation: match type mismatch")
	ErrGameMismatch            = errors.New("negotiation: game mismatch")
	ErrIdenticalCommitment     = errors.New("negotiation: identical commitment")
	ErrInvalidCommitment       = errors.New("negotiation: invalid commitment")
	ErrExpectedHello           = errors.New("negotiation: expected hello")
	ErrExpectedHola            = errors.New("negotiation: expected hola")
	ErrUnexpectedPacket        = errors.New("negotiation: unexpected packet")
)

var log = logging.New("negotiation")

// Compatibility reports whether a peer-advertised GameInfo is one our local
// game build accepts. Cross-revision play is explicitly out of scope (spec
// §1 Non-goals), so in practice this checks family, variant, and revision
// equality, but is left pluggable for games with an explicit compatibility
// set.
type Compatibility func(peer packet.GameInfo) bool

// Params are the local side's inputs to negotiation.
type Params struct {
	MatchType  packet.MatchType
	GameInfo   packet.GameInfo
	InputDelay uint32
	Compatible Compatibility

	// NonceSource overrides the nonce generator; defaults to
	// crypto/rand.Reader. Tests use this to force a commitment collision
	//.
	NonceSource io.Reader
}

// Result is what a successful negotiation produces.
type Result struct {
	SharedRNG    *rng.PCG128
	InputDelay   uint32
	PeerDelay    uint32
	IsOfferer    bool
	LocalNonce   [16]byte
	PeerNonce    [16]byte
	PeerGameInfo packet.GameInfo
}

func commitment(nonce [16]byte) [32]byte {
	h := sha3.NewShake128()
	h.Write([]byte("syncrand:nonce:"))
	h.Write(nonce[:])

	var out [32]byte
	_, _ = h.Read(out[:])
	return out
}

func sendMessage(ctx context.Context, dc datachannel.DataChannel, m packet.Message) error {
	encoded, err := packet.Encode(m)
	if err != nil {
		return fmt.Errorf("negotiation: encode: %w", err)
	}
	return dc.Send(ctx, encoded)
}

func receiveMessage(ctx context.Context, dc datachannel.DataChannel, packetSize int) (packet.Message, error) {
	raw, err := dc.Receive(ctx)
	if err != nil {
		return packet.Message{}, err
	}
	if raw == nil {
		return packet.Message{}, datachannel.ErrClosed
	}
	return packet.Decode(raw, packetSize)
}

// Negotiate runs the Hello/Hola exchange and returns the shared RNG, the
// agreed delays, and the offerer tiebreak.
func Negotiate(ctx context.Context, dc datachannel.DataChannel, p Params) (*Result, error) {
	nonceSource := p.NonceSource
	if nonceSource == nil {
		nonceSource = rand.Reader
	}

	var localNonce [16]byte
	if _, err := io.ReadFull(nonceSource, localNonce[:]); err != nil {
		return nil, fmt.Errorf("negotiation: generate nonce: %w", err)
	}

	localCommitment := commitment(localNonce)

	log.Info("sending hello: match_type=%v game=%+v", p.MatchType, p.GameInfo)
	if err := sendMessage(ctx, dc, packet.HelloMessage(packet.Hello{
		ProtocolVersion: ProtocolVersion,
		MatchType:       p.MatchType,
		GameInfo:        p.GameInfo,
		RNGCommitment:   localCommitment,
		InputDelay:      p.InputDelay,
	})); err != nil {
		return nil, err
	}

	msg, err := receiveMessage(ctx, dc, 0)
	if err != nil {
		return nil, err
	}
	if msg.Hello == nil {
		return nil, ErrExpectedHello
	}
	peerHello := *msg.Hello

	if peerHello.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("%w: local=%#x peer=%#x", ErrProtocolVersionMismatch, ProtocolVersion, peerHello.ProtocolVersion)
	}

	if peerHello.MatchType != p.MatchType {
		return nil, ErrMatchTypeMismatch
	}

	if p.Compatible != nil && !p.Compatible(peerHello.GameInfo) {
		return nil, fmt.Errorf("%w: %+v", ErrGameMismatch, peerHello.GameInfo)
	}

	if subtle.ConstantTimeCompare(localCommitment[:], peerHello.RNGCommitment[:]) == 1 {
		return nil, ErrIdenticalCommitment
	}

	if err := sendMessage(ctx, dc, packet.HolaMessage(packet.Hola{RNGNonce: localNonce})); err != nil {
		return nil, err
	}

	msg, err = receiveMessage(ctx, dc, 0)
	if err != nil {
		return nil, err
	}
	if msg.Hola == nil {
		return nil, ErrExpectedHola
	}
	peerHola := *msg.Hola

	expected := commitment(peerHola.RNGNonce)
	if subtle.ConstantTimeCompare(expected[:], peerHello.RNGCommitment[:]) != 1 {
		return nil, ErrInvalidCommitment
	}

	seed := rng.Seed(localNonce, peerHola.RNGNonce)

	// The offerer is the side with the lower commitment, giving both
	// peers an identical, collision-free tiebreak without relying on the
	// rendezvous role.
	isOfferer := lessBytes(localCommitment[:], peerHello.RNGCommitment[:])

	log.Info("negotiation complete: offerer=%v peer_delay=%d", isOfferer, peerHello.InputDelay)

	return &Result{
		SharedRNG:    rng.New(seed),
		InputDelay:   p.InputDelay,
		PeerDelay:    peerHello.InputDelay,
		IsOfferer:    isOfferer,
		LocalNonce:   localNonce,
		PeerNonce:    peerHola.RNGNonce,
		PeerGameInfo: peerHello.GameInfo,
	}, nil
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
