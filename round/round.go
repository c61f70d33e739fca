// Package round drives a single round of play: the primary emulator
// instance the local player watches, fed from a lockstep input queue via
// the fastforwarder, with the opponent-side shadow running alongside to
// produce verified turn packets.
package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tangobattle/tango-core/emu"
	"github.com/tangobattle/tango-core/fastforward"
	"github.com/tangobattle/tango-core/input"
	"github.com/tangobattle/tango-core/internal/logging"
	"github.com/tangobattle/tango-core/internal/metrics"
	"github.com/tangobattle/tango-core/lockstep"
	"github.com/tangobattle/tango-core/shadow"
)

// State is a round's position in its state machine.
type State int

const (
	StateWaitingForStart State = iota
	StateInitExchange
	StateMain
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWaitingForStart:
		return "waiting_for_start"
	case StateInitExchange:
		return "init_exchange"
	case StateMain:
		return "main"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Outcome is the round's final result once it reaches StateEnded.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeWin
	OutcomeLoss
	OutcomeDraw
)

// ErrProtocolViolation is returned when a driver calls a round method out
// of order for its current state.
var ErrProtocolViolation = errors.New("round: protocol violation")

var log = logging.New("round")

// Round owns the primary emulator, the opponent shadow, the fastforwarder,
// and the lockstep queue for one round of a match.
type Round struct {
	mu sync.Mutex

	localPlayerIndex uint8
	sessionLabel     string

	queue *lockstep.Queue
	ff    *fastforward.Fastforwarder
	sh    *shadow.Shadow

	core  emu.Emulator
	hooks emu.Hooks

	joyflags atomic.Uint32

	state        State
	committed    emu.State
	dirty        emu.State
	currentTick  uint32
	outcome      Outcome
	shadowWonLast bool

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Params configures a new round.
type Params struct {
	SessionLabel     string
	LocalPlayerIndex uint8
	LocalDelay       uint32
	RemoteDelay      uint32
	MaxQueueLength   int

	PrimaryCore emu.Emulator
	ShadowCore  emu.Emulator
	FFCore      emu.Emulator
	Hooks       emu.Hooks

	// ShadowWonLastRound records whether the opponent-side shadow won the
	// previous round. The round stores it but does not otherwise act on it.
	ShadowWonLastRound bool
}

// New constructs a round in StateWaitingForStart. The caller supplies
// three distinct emulator instances: one watched live (primary), one
// driving the opponent replica (shadow), and one used purely for
// speculative rollback replay (fastforward).
func New(ctx context.Context, p Params) (*Round, error) {
	sh, err := shadow.New(p.ShadowCore, p.Hooks, p.LocalPlayerIndex)
	if err != nil {
		return nil, fmt.Errorf("round: new shadow: %w", err)
	}
	ff, err := fastforward.New(p.FFCore, p.Hooks)
	if err != nil {
		return nil, fmt.Errorf("round: new fastforwarder: %w", err)
	}

	rctx, cancel := context.WithCancelCause(ctx)

	r := &Round{
		localPlayerIndex: p.LocalPlayerIndex,
		sessionLabel:     p.SessionLabel,
		queue:            lockstep.New(p.MaxQueueLength),
		ff:               ff,
		sh:               sh,
		core:             p.PrimaryCore,
		hooks:            p.Hooks,
		state:            StateWaitingForStart,
		shadowWonLast:    p.ShadowWonLastRound,
		ctx:              rctx,
		cancel:           cancel,
	}

	lockstep.FillInputDelay(r.queue, 0, p.LocalDelay, p.RemoteDelay, p.Hooks.PacketSize())

	traps := append([]emu.Trap{}, p.Hooks.CommonTraps()...)
	traps = append(traps, p.Hooks.PrimaryTraps(&r.joyflags, r, r.ctx)...)
	p.PrimaryCore.SetTraps(traps)
	p.Hooks.Patch(p.PrimaryCore.Core())
	p.PrimaryCore.Reset()

	return r, nil
}

// Begin transitions WaitingForStart -> InitExchange, called once the
// negotiated start trap fires on the primary emulator.
func (r *Round) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateWaitingForStart {
		return fmt.Errorf("%w: Begin in state %s", ErrProtocolViolation, r.state)
	}
	r.state = StateInitExchange
	log.Info("round %s: init exchange", r.sessionLabel)
	return nil
}

// CommitStart finishes InitExchange -> Main once both peers' starting
// checkpoints are known to agree; state comes from the shadow replica's
// first committed state, matching it is the caller's responsibility.
func (r *Round) CommitStart(state emu.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInitExchange {
		return fmt.Errorf("%w: CommitStart in state %s", ErrProtocolViolation, r.state)
	}
	r.committed = state
	r.state = StateMain
	log.Info("round %s: main started", r.sessionLabel)
	return nil
}

// SetLocalJoyflags publishes this tick's local input for the primary
// emulator's trap to read, and enqueues it for commitment.
func (r *Round) SetLocalJoyflags(joyflags uint16) error {
	r.mu.Lock()
	if r.state != StateMain {
		r.mu.Unlock()
		return fmt.Errorf("%w: SetLocalJoyflags in state %s", ErrProtocolViolation, r.state)
	}
	if !r.queue.CanAddLocalInput() {
		r.mu.Unlock()
		return fmt.Errorf("round: local queue full")
	}
	r.joyflags.Store(uint32(joyflags))
	r.currentTick++
	r.queue.AddLocalInput(input.Input{LocalTick: r.currentTick, Joyflags: joyflags})
	metrics.QueueLength.WithLabelValues(r.sessionLabel, "local").Set(float64(r.queue.LocalLen()))
	err := r.advance()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	// The primary emulator is the one the player actually watches: it runs
	// forward immediately on live (possibly still-speculative) input
	// rather than waiting on the fastforwarder's committed checkpoint.
	// Must run unlocked: its round-end trap calls back into
	// ReportPrimaryTick, which itself locks r.mu.
	r.core.RunFrame()
	return nil
}

// AddRemoteInput enqueues an input received over the wire via the match
// package's Input-message dispatch. Once the round is ending or has
// ended, remote inputs are dropped without error.
func (r *Round) AddRemoteInput(in input.Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateEnding || r.state == StateEnded {
		return nil
	}
	if r.state != StateMain {
		return fmt.Errorf("%w: AddRemoteInput in state %s", ErrProtocolViolation, r.state)
	}
	if !r.queue.CanAddRemoteInput() {
		return fmt.Errorf("round: remote queue full")
	}
	r.queue.AddRemoteInput(in)
	metrics.QueueLength.WithLabelValues(r.sessionLabel, "remote").Set(float64(r.queue.RemoteLen()))
	return r.advance()
}

// advance drains every committed pair currently available, fastforwards,
// feeds the shadow replica, and loads the resulting state into the
// primary emulator. Callers must hold r.mu.
func (r *Round) advance() error {
	committed, localLeft := r.queue.ConsumeAndPeekLocal()
	if len(committed) == 0 {
		return nil
	}

	lastRemote, _ := r.queue.LastCommittedRemoteInput()

	res, err := r.ff.Fastforward(r.committed, committed, lastRemote, localLeft)
	if err != nil {
		return fmt.Errorf("round: fastforward: %w", err)
	}
	r.committed = res.CommittedState
	r.dirty = res.DirtyState

	for _, pair := range committed {
		if _, err := r.sh.ApplyInput(input.Pair[input.Input, input.PartialInput]{
			Local:  pair.Remote,
			Remote: pair.Local.Partial(),
		}); err != nil {
			return fmt.Errorf("round: shadow: %w", err)
		}
	}

	toLoad := r.dirty
	if toLoad == nil {
		toLoad = r.committed
	}
	if toLoad != nil {
		if err := r.core.LoadState(toLoad); err != nil {
			return fmt.Errorf("round: load primary state: %w", err)
		}
	}

	return nil
}

// ReportPrimaryTick is called by the primary emulator's round-end trap
// (round_end_entry) to signal the round is over.
func (r *Round) ReportPrimaryTick(tick uint32, ending bool, winner uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ending || r.state != StateMain {
		return
	}
	r.state = StateEnding
	if winner == 1 {
		r.outcome = OutcomeWin
	} else {
		r.outcome = OutcomeLoss
	}
	log.Info("round %s: ending, outcome=%d tick=%d", r.sessionLabel, r.outcome, tick)

	if err := r.sh.AdvanceUntilRoundEnd(); err != nil {
		log.Warn("round %s: shadow desync at round end: %v", r.sessionLabel, err)
	}

	r.state = StateEnded
	metrics.RoundsCompleted.WithLabelValues(r.sessionLabel, outcomeLabel(r.outcome)).Inc()
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeDraw:
		return "draw"
	default:
		return "unknown"
	}
}

func (r *Round) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Round) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

func (r *Round) TPSBias(fps int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lockstep.TPSBias(r.queue, fps)
}

// Cancel aborts the round, e.g. on data channel loss.
func (r *Round) Cancel(cause error) {
	r.cancel(cause)
}
