// Package emu declares the external collaborators the lockstep core
// consumes: the emulator core itself and the per-game hooks that install
// address traps into it. Neither is implemented here — see emu/fake for a
// deterministic stand-in used by the package tests.
package emu

import "sync/atomic"

// State is an opaque, cloneable emulator state snapshot. Two States
// produced from equivalent execution paths must compare byte-equal.
type State []byte

// Clone returns an independent copy of the state so callers can retain a
// snapshot across further emulator execution without aliasing.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	copy(out, s)
	return out
}

// Segment selects an address space when the emulator exposes more than one
// (e.g. ROM vs. working RAM on handhelds with banked memory).
type Segment uint8

// Core is the mutable handle a trap handler receives while it executes on
// the emulator's thread. All register and memory access happens through it.
type Core interface {
	RawRead8(addr uint32, seg Segment) uint8
	RawRead16(addr uint32, seg Segment) uint16
	RawRead32(addr uint32, seg Segment) uint32
	RawWrite8(addr uint32, seg Segment, v uint8)
	RawWrite16(addr uint32, seg Segment, v uint16)
	RawWrite32(addr uint32, seg Segment, v uint32)
}

// TrapFunc is a handler invoked when the emulator's program counter hits a
// registered address. It receives a mutable Core handle valid only for the
// duration of the call.
type TrapFunc func(core Core)

// Trap pairs an address with the handler to run when it is hit.
type Trap struct {
	Addr    uint32
	Handler TrapFunc
}

// Emulator is the subset of a cycle-accurate emulator core the lockstep
// engine depends on. It never inspects ROM, audio, or video data directly;
// it only drives frames, installs traps, and snapshots/restores state.
type Emulator interface {
	LoadROM(rom []byte) error
	LoadSave(save []byte) error
	Reset()

	// RunFrame advances exactly one video frame.
	RunFrame()

	// RunLoop runs until a trap handler returns control by some
	// out-of-band signal (e.g. closing over a done channel). Real
	// implementations block here; emu/fake's RunLoop returns after firing
	// a single address of its cycle so tests can drive it step by step.
	RunLoop()

	SetTraps(traps []Trap)
	SetFPSTarget(fps float32)

	SaveState() (State, error)
	LoadState(State) error

	// VideoBuffer returns the most recently rendered frame, or nil if
	// none is available yet. Not consumed by the lockstep core itself;
	// exposed for replay-driven rendering.
	VideoBuffer() []byte

	// Core returns a handle for direct register/memory access outside of
	// a trap callback, valid for as long as no other call on this
	// Emulator is in flight. Used to drive Hooks.Patch and
	// Hooks.PrepareForFastforward, which need to mutate live emulator
	// state but aren't themselves trap handlers.
	Core() Core
}

// Hooks is the per-game capability table the orchestrators are
// parameterized by. The addresses it returns are per-ROM-revision
// data, not part of the core's design.
type Hooks interface {
	// CommonTraps returns traps installed identically on every emulator
	// instance driven by this hook set (primary, shadow, fastforwarder).
	CommonTraps() []Trap

	// PrimaryTraps returns the traps installed only on the emulator the
	// local player actually watches: the one that reads live joyflags,
	// reports round outcomes through matchHandle, and exits once
	// completionToken is done. matchHandle and completionToken are typed
	// any because their concrete types live in the round package, which
	// itself depends on emu — a game's Hooks implementation type-asserts
	// to whatever concrete handle its round package hands it.
	PrimaryTraps(joyflags *atomic.Uint32, matchHandle any, completionToken any) []Trap

	// ReplayerTraps returns the traps installed when this emulator is
	// driven by a recorded replay rather than a live match.
	ReplayerTraps(replayerState any) []Trap

	// ShadowTraps returns the traps installed on the opponent-side replica
	// driven by the shadow package.
	ShadowTraps(shadowState any) []Trap

	// PacketSize is the fixed size in bytes of this game's turn packet.
	PacketSize() int

	// PrepareForFastforward runs game-specific pre-roll setup (e.g.
	// disabling audio mixing) before a core is driven speculatively.
	PrepareForFastforward(core Core)

	// Patch applies one-time code patches after ROM load, e.g. disabling
	// link-cable interrupts so the emulator doesn't stall waiting on
	// hardware that will never respond.
	Patch(core Core)

	// PredictRX optionally mutates a predicted remote packet in place
	// before it is used by the fastforwarder. The default implementation
	// is a no-op; see spec Open Questions.
	PredictRX(packet []byte)
}
