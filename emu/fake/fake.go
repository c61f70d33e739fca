// Package fake provides a deterministic, trap-driven stand-in for a real
// emulator core, used to exercise the round/shadow/fastforward/match
// orchestration logic without a real 32-bit handheld core.
//
// The fake game models a trivially simple turn-based contest: each tick it
// folds the two players' joyflags into a running accumulator, and once
// enough ticks have passed it fires a deterministic winner based on the
// accumulator's parity. Its "addresses" are just named steps in an ordered
// cycle, fired one per RunLoop call so tests can single-step it.
package fake

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/tangobattle/tango-core/emu"
)

// Trap addresses. Real hook implementations derive these from a
// disassembly of a specific ROM revision; the fake assigns them by fiat.
const (
	AddrCommMenuInit      uint32 = 0x1000
	AddrRoundStartRet     uint32 = 0x1010
	AddrCopyInputDataP1   uint32 = 0x1020
	AddrCopyInputDataP2   uint32 = 0x1021
	AddrMainReadJoyflags  uint32 = 0x1030
	AddrRoundSetEnding    uint32 = 0x1040
	AddrRoundEndEntry     uint32 = 0x1050
)

var cycle = []uint32{
	AddrCommMenuInit,
	AddrRoundStartRet,
	AddrCopyInputDataP1,
	AddrCopyInputDataP2,
	AddrMainReadJoyflags,
	AddrRoundSetEnding,
	AddrRoundEndEntry,
}

// TicksPerRound is how many times AddrMainReadJoyflags fires before the
// fake declares the round over.
const TicksPerRound = 8

// Core is the mutable register/memory file the fake exposes to trap
// handlers. Registers are just named 32-bit slots; segment is ignored.
type Core struct {
	mem map[uint32]uint32
}

func newCore() *Core { return &Core{mem: make(map[uint32]uint32)} }

func (c *Core) RawRead8(addr uint32, _ emu.Segment) uint8   { return uint8(c.mem[addr]) }
func (c *Core) RawRead16(addr uint32, _ emu.Segment) uint16 { return uint16(c.mem[addr]) }
func (c *Core) RawRead32(addr uint32, _ emu.Segment) uint32 { return c.mem[addr] }

func (c *Core) RawWrite8(addr uint32, _ emu.Segment, v uint8)   { c.mem[addr] = uint32(v) }
func (c *Core) RawWrite16(addr uint32, _ emu.Segment, v uint16) { c.mem[addr] = uint32(v) }
func (c *Core) RawWrite32(addr uint32, _ emu.Segment, v uint32) { c.mem[addr] = v }

// Register addresses mirroring where a real game would keep joyflags and
// round state; trap handlers read and write them through Core.
const (
	RegLocalJoyflags uint32 = 0xf000
	RegRemoteJoyflags uint32 = 0xf004
	RegTick           uint32 = 0xf008
	RegAccumulator    uint32 = 0xf00c
	RegEnding         uint32 = 0xf010
	RegWinner         uint32 = 0xf014
)

// Emulator implements emu.Emulator over the fixed address cycle above.
type Emulator struct {
	core      *Core
	traps     map[uint32]emu.TrapFunc
	cycleIdx  int
	tick      uint32
	acc       uint64
	ending    bool
	ended     bool
	loaded    bool
	rom, save []byte
}

func New() *Emulator {
	return &Emulator{core: newCore(), traps: make(map[uint32]emu.TrapFunc)}
}

func (e *Emulator) LoadROM(rom []byte) error  { e.rom = rom; e.loaded = true; return nil }
func (e *Emulator) LoadSave(save []byte) error { e.save = save; return nil }

func (e *Emulator) Reset() {
	e.cycleIdx = 0
	e.tick = 0
	e.acc = 0
	e.ending = false
	e.ended = false
	e.core.mem = make(map[uint32]uint32)
}

func (e *Emulator) SetTraps(traps []emu.Trap) {
	e.traps = make(map[uint32]emu.TrapFunc, len(traps))
	for _, t := range traps {
		e.traps[t.Addr] = t.Handler
	}
}

func (e *Emulator) SetFPSTarget(float32) {}

// RunFrame advances the cycle by one full lap (one tick of the fake game).
func (e *Emulator) RunFrame() {
	for i := 0; i < len(cycle); i++ {
		e.RunLoop()
	}
}

// RunLoop fires exactly the next address's trap, if any is installed, and
// advances the internal cycle pointer. Real implementations block until a
// trap handler signals completion; this one returns immediately so tests
// can drive it step by step.
func (e *Emulator) RunLoop() {
	addr := cycle[e.cycleIdx]
	e.cycleIdx = (e.cycleIdx + 1) % len(cycle)

	switch addr {
	case AddrMainReadJoyflags:
		e.tick++
		local := e.core.mem[RegLocalJoyflags]
		remote := e.core.mem[RegRemoteJoyflags]
		e.acc = e.acc*31 + uint64(local)<<16 ^ uint64(remote)
		e.core.mem[RegTick] = e.tick
		e.core.mem[RegAccumulator] = uint32(e.acc)
		if e.tick >= TicksPerRound {
			e.ending = true
			e.core.mem[RegEnding] = 1
			e.core.mem[RegWinner] = uint32(e.acc & 1)
		}
	}

	if h, ok := e.traps[addr]; ok {
		h(e.core)
	}
}

func (e *Emulator) SaveState() (emu.State, error) {
	s := make(emu.State, 20)
	binary.LittleEndian.PutUint32(s[0:4], uint32(e.cycleIdx))
	binary.LittleEndian.PutUint32(s[4:8], e.tick)
	binary.LittleEndian.PutUint64(s[8:16], e.acc)
	if e.ending {
		s[16] = 1
	}
	if e.ended {
		s[17] = 1
	}
	return s, nil
}

func (e *Emulator) LoadState(s emu.State) error {
	if len(s) < 18 {
		return nil
	}
	e.cycleIdx = int(binary.LittleEndian.Uint32(s[0:4]))
	e.tick = binary.LittleEndian.Uint32(s[4:8])
	e.acc = binary.LittleEndian.Uint64(s[8:16])
	e.ending = s[16] == 1
	e.ended = s[17] == 1
	e.core.mem[RegTick] = e.tick
	e.core.mem[RegAccumulator] = uint32(e.acc)
	return nil
}

func (e *Emulator) VideoBuffer() []byte { return nil }

func (e *Emulator) Core() emu.Core { return e.core }

// SetLocalJoyflags / SetRemoteJoyflags let a test harness drive input
// before calling RunLoop through AddrMainReadJoyflags.
func (e *Emulator) SetLocalJoyflags(v uint16)  { e.core.mem[RegLocalJoyflags] = uint32(v) }
func (e *Emulator) SetRemoteJoyflags(v uint16) { e.core.mem[RegRemoteJoyflags] = uint32(v) }
func (e *Emulator) Tick() uint32               { return e.tick }
func (e *Emulator) Ending() bool               { return e.ending }

// Hooks is a deterministic emu.Hooks implementation over the fake address
// cycle, parameterized by the concrete handle types round/shadow/fastforward
// hand it.
type Hooks struct{}

func (Hooks) CommonTraps() []emu.Trap { return nil }

func (Hooks) PrimaryTraps(joyflags *atomic.Uint32, matchHandle any, completionToken any) []emu.Trap {
	type reporter interface {
		ReportPrimaryTick(tick uint32, ending bool, winner uint32)
	}
	r, _ := matchHandle.(reporter)
	return []emu.Trap{
		{Addr: AddrMainReadJoyflags, Handler: func(c emu.Core) {
			c.RawWrite32(RegLocalJoyflags, 0, joyflags.Load())
		}},
		{Addr: AddrRoundEndEntry, Handler: func(c emu.Core) {
			if r != nil {
				r.ReportPrimaryTick(c.RawRead32(RegTick, 0), c.RawRead32(RegEnding, 0) == 1, c.RawRead32(RegWinner, 0))
			}
		}},
	}
}

func (Hooks) ReplayerTraps(replayerState any) []emu.Trap {
	type feeder interface {
		NextReplayJoyflags() (local, remote uint16, ok bool)
	}
	f, _ := replayerState.(feeder)
	return []emu.Trap{
		{Addr: AddrMainReadJoyflags, Handler: func(c emu.Core) {
			if f == nil {
				return
			}
			local, remote, ok := f.NextReplayJoyflags()
			if !ok {
				return
			}
			c.RawWrite32(RegLocalJoyflags, 0, uint32(local))
			c.RawWrite32(RegRemoteJoyflags, 0, uint32(remote))
		}},
	}
}

func (Hooks) ShadowTraps(shadowState any) []emu.Trap {
	type sink interface {
		NextShadowJoyflags() (local, remote uint16, ok bool)
		MarkFirstCommitted()
		MarkApplied()
		MarkEnded()
		CapturePacket(core emu.Core, addr uint32, seg emu.Segment)
	}
	s, _ := shadowState.(sink)
	return []emu.Trap{
		{Addr: AddrRoundStartRet, Handler: func(c emu.Core) {
			if s == nil {
				return
			}
			s.MarkFirstCommitted()
		}},
		{Addr: AddrCopyInputDataP2, Handler: func(c emu.Core) {
			if s == nil {
				return
			}
			s.CapturePacket(c, RegAccumulator, 0)
		}},
		{Addr: AddrMainReadJoyflags, Handler: func(c emu.Core) {
			if s == nil {
				return
			}
			if local, remote, ok := s.NextShadowJoyflags(); ok {
				c.RawWrite32(RegLocalJoyflags, 0, uint32(local))
				c.RawWrite32(RegRemoteJoyflags, 0, uint32(remote))
			}
			s.MarkApplied()
		}},
		{Addr: AddrRoundEndEntry, Handler: func(c emu.Core) {
			if s == nil {
				return
			}
			if c.RawRead32(RegEnding, 0) == 1 {
				s.MarkEnded()
			}
		}},
	}
}

func (Hooks) PacketSize() int { return 4 }

func (Hooks) PrepareForFastforward(emu.Core) {}
func (Hooks) Patch(emu.Core)                 {}
func (Hooks) PredictRX([]byte)               {}
