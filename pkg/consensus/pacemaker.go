package consensus

import (
	"context"
	"time"

	"github.com/uhyunpark/hyperswap/pkg/util"
)

type PacemakerTimers struct {
	Ppc   time.Duration // wait for the leader's proposal
	Delta time.Duration // network delay bound
}

type Pacemaker struct {
	Timers PacemakerTimers
	Clock  util.Clock
	State  *State

	viewAdvanceCh chan View
}

func NewPacemaker(timers PacemakerTimers, clock util.Clock, state *State) *Pacemaker {
	return &Pacemaker{
		Timers:        timers,
		Clock:         clock,
		State:         state,
		viewAdvanceCh: make(chan View, 10),
	}
}

// WaitForViewAdvance blocks a follower until a prepare for targetView or
// later arrives. On timeout the view advances anyway.
func (p *Pacemaker) WaitForViewAdvance(ctx context.Context, targetView View) error {
	deadline := time.NewTimer(p.Timers.Ppc + p.Timers.Delta)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// TODO: run a view change with timeout certificates instead of
			// moving on silently.
			p.State.View = targetView
			return nil
		case v := <-p.viewAdvanceCh:
			if v >= targetView {
				p.State.View = v
				return nil
			}
		}
	}
}

// SignalViewAdvance wakes a waiting follower. Signals beyond the buffer are
// dropped and the follower falls back to its timeout.
func (p *Pacemaker) SignalViewAdvance(v View) {
	select {
	case p.viewAdvanceCh <- v:
	default:
	}
}

// Idle waits d before the leader retries a view with nothing to propose.
func (p *Pacemaker) Idle(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Handlers struct {
	OnPropose func(ctx context.Context, p Propose)
	OnPrepare func(ctx context.Context, cert Certificate, blk Block)
}

type Network interface {
	// outbound
	BroadcastPropose(ctx context.Context, p Propose) error
	BroadcastPrepare(ctx context.Context, cert Certificate) error
	SendVote(ctx context.Context, to NodeID, v Vote) error

	// leader-side collections
	CollectVotes(ctx context.Context, view View, h Hash, need int) ([]Vote, error)

	// inbound handler registration
	SetHandlers(h Handlers)
}

type AppHook interface {
	// PreparePayload returns the encoded messages for the next block.
	PreparePayload(parent Block, next Height) []byte
	// OnCommit executes a block and returns the resulting state hash.
	OnCommit(b Block) (Hash, error)
}
