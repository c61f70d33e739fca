// Package shadow implements the opponent-side emulator replica: the
// authoritative source of the opponent's turn packet, since that packet is
// produced by the opponent's game code and cannot itself be transmitted in
// time.
package shadow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tangobattle/tango-core/emu"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/logging"
)

// ErrDesync is returned when the shadow emulator reports an error, e.g. an
// address trap firing out of the expected order. It is fatal to the match.
var ErrDesync = errors.New("shadow: desync")

type phase int

const (
	phaseIdle phase = iota
	phaseAcceptingInput
	phaseEnded
)

var log = logging.New("shadow")

// Shadow drives a second emulator instance that simulates the opponent's
// perspective of the match: our PartialInput stands in for "remote", and
// the opponent's committed Input stands in for "local".
type Shadow struct {
	core  emu.Emulator
	hooks emu.Hooks

	mu             sync.Mutex
	phase          phase
	currentTick    uint32
	localPlayerIdx uint8
	pendingError   error

	firstCommitReached bool
	appliedReached     bool
	pendingPacket      []byte

	havePendingPair bool
	pendingLocal    uint16
	pendingRemote   uint16
}

// New constructs a shadow emulator instance already reset and carrying the
// shadow traps for this round's local-player assignment.
func New(core emu.Emulator, hooks emu.Hooks, localPlayerIndex uint8) (*Shadow, error) {
	s := &Shadow{
		core:           core,
		hooks:          hooks,
		localPlayerIdx: localPlayerIndex,
	}

	hooks.Patch(core.Core())

	traps := append([]emu.Trap{}, hooks.CommonTraps()...)
	traps = append(traps, hooks.ShadowTraps(s)...)
	core.SetTraps(traps)
	core.Reset()

	return s, nil
}

// ReportError is called by a shadow trap handler when the opponent-side
// simulation detects an impossible state (e.g. an address fired out of
// order). It is surfaced to the driving goroutine on the next poll.
func (s *Shadow) ReportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingError == nil {
		s.pendingError = err
	}
}

// MarkFirstCommitted is called by the round-start shadow trap once the
// shadow reaches the point where both peers' states are first guaranteed
// identical. The actual state snapshot is taken by the driving goroutine
// once RunLoop returns control, since SaveState is only available on the
// full Emulator handle, not the Core a trap handler receives.
func (s *Shadow) MarkFirstCommitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstCommitReached = true
}

// MarkApplied is called by the mid-round shadow trap after one input pair
// has been applied.
func (s *Shadow) MarkApplied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedReached = true
}

// CapturePacket is called by a shadow trap handler with the live Core and
// the address the game's hooks say holds the just-produced turn packet,
// reading it out of game memory before the emulator moves on.
func (s *Shadow) CapturePacket(core emu.Core, addr uint32, seg emu.Segment) {
	v := core.RawRead32(addr, seg)
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}

	s.mu.Lock()
	s.pendingPacket = buf
	s.mu.Unlock()
}

// NextShadowJoyflags is polled by the shadow trap that feeds this tick's
// joyflags into the emulator's input registers, returning ok=false once
// the pending pair has been consumed.
func (s *Shadow) NextShadowJoyflags() (local, remote uint16, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.havePendingPair {
		return 0, 0, false
	}
	s.havePendingPair = false
	return s.pendingLocal, s.pendingRemote, true
}

// CurrentTick returns the shadow round's current tick counter.
func (s *Shadow) CurrentTick() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTick
}

// AdvanceUntilFirstCommittedState runs the shadow emulator to the round's
// "start completed" trap and returns the committed state both peers will
// use as their round-start checkpoint.
func (s *Shadow) AdvanceUntilFirstCommittedState() (emu.State, error) {
	log.Info("shadow: advancing to first committed state")
	s.mu.Lock()
	s.phase = phaseAcceptingInput
	s.mu.Unlock()

	for {
		s.core.RunLoop()

		s.mu.Lock()
		if s.pendingError != nil {
			err := s.pendingError
			s.pendingError = nil
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrDesync, err)
		}
		if s.firstCommitReached {
			s.firstCommitReached = false
			s.currentTick = 0
			s.mu.Unlock()

			state, err := s.core.SaveState()
			if err != nil {
				return nil, fmt.Errorf("shadow: save state: %w", err)
			}
			return state, nil
		}
		s.mu.Unlock()
	}
}

// ApplyInput runs the shadow one tick given the opponent's committed input
// and our partial input, returning the packet the opponent's game produced
//.
func (s *Shadow) ApplyInput(pair input.Pair[input.Input, input.PartialInput]) ([]byte, error) {
	s.mu.Lock()
	s.pendingLocal = pair.Local.Joyflags
	s.pendingRemote = pair.Remote.Joyflags
	s.havePendingPair = true
	s.mu.Unlock()

	for {
		s.core.RunLoop()

		s.mu.Lock()
		if s.pendingError != nil {
			err := s.pendingError
			s.pendingError = nil
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrDesync, err)
		}
		if s.appliedReached {
			s.appliedReached = false
			s.currentTick++
			packet := s.pendingPacket
			s.mu.Unlock()
			return packet, nil
		}
		s.mu.Unlock()
	}
}

// AdvanceUntilRoundEnd runs the shadow past the round-ending trap.
func (s *Shadow) AdvanceUntilRoundEnd() error {
	log.Info("shadow: advancing to round end")
	s.hooks.PrepareForFastforward(s.core.Core())

	for {
		s.core.RunLoop()

		s.mu.Lock()
		if s.pendingError != nil {
			err := s.pendingError
			s.pendingError = nil
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrDesync, err)
		}
		if s.phase == phaseEnded {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
}

// MarkEnded transitions the shadow to its terminal state; called by the
// round-end shadow trap.
func (s *Shadow) MarkEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseEnded
}
