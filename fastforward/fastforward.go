// Package fastforward implements the rollback replay engine: given a
// committed state and a run of input pairs, it produces the new committed
// state plus a speculative "dirty" state built from predicted remote
// input. The same machinery, fed purely from committed pairs with no
// speculative tail, is also how recorded replays are played back.
package fastforward

import (
	"errors"
	"fmt"

	"github.com/tangobattle/tango-core/emu"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/logging"
)

// ErrInputsExhausted is returned when a frame runs without the core
// consuming any of the committed pairs still left to apply.
var ErrInputsExhausted = errors.New("fastforward: inputs exhausted")

var log = logging.New("fastforward")

// Fastforwarder drives a dedicated emulator instance through a span of
// input, never touching the primary instance the player actually watches.
type Fastforwarder struct {
	core  emu.Emulator
	hooks emu.Hooks
	feed  *feeder
}

// feeder implements the feeder contract emu.Hooks.ReplayerTraps expects:
// it hands back one (local, remote) joyflag pair per tick from a
// preloaded queue, signaling exhaustion via ok=false.
type feeder struct {
	pairs []input.Pair[uint16, uint16]
	pos   int
}

func (f *feeder) NextReplayJoyflags() (local, remote uint16, ok bool) {
	if f.pos >= len(f.pairs) {
		return 0, 0, false
	}
	p := f.pairs[f.pos]
	f.pos++
	return p.Local, p.Remote, true
}

func (f *feeder) remaining() int { return len(f.pairs) - f.pos }

// New constructs a fastforwarder. The supplied core should be a fresh
// instance distinct from the primary and shadow emulators.
func New(core emu.Emulator, hooks emu.Hooks) (*Fastforwarder, error) {
	ff := &Fastforwarder{core: core, hooks: hooks, feed: &feeder{}}

	hooks.Patch(core.Core())
	hooks.PrepareForFastforward(core.Core())

	traps := append([]emu.Trap{}, hooks.CommonTraps()...)
	traps = append(traps, hooks.ReplayerTraps(ff.feed)...)
	core.SetTraps(traps)

	return ff, nil
}

// Result is the outcome of one fastforward pass.
type Result struct {
	// CommittedState is the new authoritative checkpoint after replaying
	// every pair in commitPairs.
	CommittedState emu.State

	// DirtyState is the speculative state after additionally replaying the
	// predicted tail built from localInputsLeft; nil if there was no tail.
	DirtyState emu.State

	// LastCommittedLocalTick is the local_tick of the last pair folded
	// into CommittedState; 0 if commitPairs was empty.
	LastCommittedLocalTick uint32
}

// Fastforward replays commitPairs onto committedState to produce the new
// committed checkpoint, then continues with speculative ticks built from
// localInputsLeft and the last committed remote input, per the prediction
// policy: reuse only the A and B bits of the last committed remote input's
// joyflags (all other bits zeroed) and its packet, advancing only the
// local half each tick.
func (ff *Fastforwarder) Fastforward(
	committedState emu.State,
	commitPairs []input.Pair[input.Input, input.Input],
	lastCommittedRemoteInput input.Input,
	localInputsLeft []input.PartialInput,
) (*Result, error) {
	if committedState != nil {
		if err := ff.core.LoadState(committedState); err != nil {
			return nil, fmt.Errorf("fastforward: load committed state: %w", err)
		}
	}

	ff.feed.pairs = ff.feed.pairs[:0]
	ff.feed.pos = 0
	for _, p := range commitPairs {
		ff.feed.pairs = append(ff.feed.pairs, input.Pair[uint16, uint16]{Local: p.Local.Joyflags, Remote: p.Remote.Joyflags})
	}

	var lastTick uint32
	if n := len(commitPairs); n > 0 {
		lastTick = commitPairs[n-1].Local.LocalTick
	}

	for ff.feed.remaining() > 0 {
		before := ff.feed.remaining()
		ff.core.RunFrame()
		if ff.feed.remaining() == before {
			return nil, fmt.Errorf("%w: core did not consume committed input", ErrInputsExhausted)
		}
	}

	newCommitted, err := ff.core.SaveState()
	if err != nil {
		return nil, fmt.Errorf("fastforward: save committed state: %w", err)
	}

	result := &Result{CommittedState: newCommitted, LastCommittedLocalTick: lastTick}

	if len(localInputsLeft) == 0 {
		return result, nil
	}

	log.Debug("predicting %d speculative ticks from remote tick %d", len(localInputsLeft), lastCommittedRemoteInput.LocalTick)

	ff.hooks.PredictRX(lastCommittedRemoteInput.Packet)

	ff.feed.pairs = ff.feed.pairs[:0]
	ff.feed.pos = 0
	predictedRemoteJoyflags := lastCommittedRemoteInput.Joyflags & input.PredictableJoyflags
	for _, li := range localInputsLeft {
		ff.feed.pairs = append(ff.feed.pairs, input.Pair[uint16, uint16]{Local: li.Joyflags, Remote: predictedRemoteJoyflags})
	}

	for ff.feed.remaining() > 0 {
		before := ff.feed.remaining()
		ff.core.RunFrame()
		if ff.feed.remaining() == before {
			break
		}
	}

	dirty, err := ff.core.SaveState()
	if err != nil {
		return nil, fmt.Errorf("fastforward: save dirty state: %w", err)
	}
	result.DirtyState = dirty

	// Restore the core to the committed checkpoint so the next call starts
	// clean rather than compounding speculative state.
	if err := ff.core.LoadState(newCommitted); err != nil {
		return nil, fmt.Errorf("fastforward: restore committed state: %w", err)
	}

	return result, nil
}
