package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// errIdle means the leader had nothing to propose this view.
var errIdle = errors.New("empty payload")

type Engine struct {
	State   *State
	Safety  *Safety
	PM      *Pacemaker
	App     AppHook
	Net     Network
	Elector LeaderElector
	Signer  Signer
	ID      NodeID

	Logger         *zap.SugaredLogger
	VerboseLogging bool // if false, only log commits and errors

	// MinBlockTime is the least time between two proposals of this leader,
	// and how long it waits before asking again when the mempool is empty.
	MinBlockTime time.Duration
	// EmptyBlocks makes the leader propose even with nothing to order.
	EmptyBlocks bool

	// OnBlockCommit is called after the double-chain rule commits a block.
	OnBlockCommit func(b Block)

	Store BlockStore
	WAL   WAL

	mu           sync.Mutex // guards commits
	lastProposal time.Time
}

func NewEngine(state *State, safety *Safety, pm *Pacemaker, app AppHook, net Network, elec LeaderElector, signer Signer) *Engine {
	e := &Engine{
		State: state, Safety: safety, PM: pm,
		App: app, Net: net, Elector: elec, Signer: signer,
		ID:     state.SelfID,
		Logger: zap.NewNop().Sugar(),
		Store:  NewMemStore(),
	}
	net.SetHandlers(Handlers{
		OnPropose: e.onPropose,
		OnPrepare: e.onPrepare,
	})
	return e
}

// Run drives views until ctx ends. The leader of a view proposes; the
// other validators react to proposals and prepares.
func (e *Engine) Run(ctx context.Context) error {
	for {
		err := e.step(ctx)
		if errors.Is(err, errIdle) {
			if e.MinBlockTime <= 0 {
				// nothing paces an idle leader otherwise
				if err := e.PM.Idle(ctx, e.PM.Timers.Ppc); err != nil {
					return err
				}
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

// RunN drives at most rounds views and stops early once this node leads a
// view with nothing to propose.
func (e *Engine) RunN(ctx context.Context, rounds int) error {
	for i := 0; i < rounds; i++ {
		err := e.step(ctx)
		if errors.Is(err, errIdle) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := e.State.View + 1
	leader := e.Elector.LeaderOf(v)
	if e.VerboseLogging {
		e.Logger.Infow("enter_view", "view", v, "leader", leader, "is_leader", leader == e.ID)
	}

	if leader != e.ID {
		return e.PM.WaitForViewAdvance(ctx, v)
	}
	if wait := e.MinBlockTime - time.Since(e.lastProposal); wait > 0 {
		if err := e.PM.Idle(ctx, wait); err != nil {
			return err
		}
	}
	err := e.leaderRound(ctx, v)
	e.lastProposal = time.Now()
	if err != nil {
		return err
	}
	e.State.View = v
	return nil
}

// onPropose executes the block before voting so the vote commits to the
// resulting state as well as the block.
func (e *Engine) onPropose(ctx context.Context, p Propose) {
	if leader := e.Elector.LeaderOf(p.Block.View); p.Block.Proposer != leader {
		e.Logger.Debugw("propose_ignored", "view", p.Block.View, "proposer", p.Block.Proposer, "leader", leader)
		return
	}
	e.Store.SaveBlock(p.Block)
	if !e.Safety.CanVote(p) {
		if e.VerboseLogging {
			e.Logger.Debugw("vote_skip_cannot", "view", p.Block.View)
		}
		return
	}

	appHash, err := e.App.OnCommit(p.Block)
	if err != nil {
		e.Logger.Errorw("execute_failed", "height", p.Block.Height, "view", p.Block.View, "err", err)
		return
	}

	v := Vote{
		View:    p.Block.View,
		H:       HashOfBlock(p.Block),
		AppHash: appHash,
		From:    e.ID,
	}
	if v.SigShare, err = e.Signer.SignShare(v.H[:]); err != nil {
		e.Logger.Errorw("vote_sign_failed", "view", p.Block.View, "err", err)
		return
	}
	to := e.Elector.LeaderOf(p.Block.View)
	if err := e.Net.SendVote(ctx, to, v); err != nil {
		e.Logger.Warnw("vote_send_failed", "view", p.Block.View, "to", to, "err", err)
		return
	}
	if e.VerboseLogging {
		e.Logger.Debugw("vote_sent", "view", p.Block.View, "to", to, "apphash", fmt.Sprintf("0x%x", appHash[:8]))
	}
}

// onPrepare records a certificate and commits the parent block once two
// consecutive views are certified.
func (e *Engine) onPrepare(ctx context.Context, cert Certificate, blk Block) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// ignore certificates for blocks this node has never seen
	if _, ok := e.Store.GetBlock(cert.H); !ok && blk.Proposer == "" {
		return
	}
	e.Store.SaveCert(cert)
	if blk.Proposer != "" {
		e.Store.SaveBlock(blk)
	}
	e.Safety.OnPrepare(cert, blk)
	e.PM.SignalViewAdvance(cert.View)

	if cert.View == 0 {
		return
	}
	prevCert, ok := e.Store.GetCert(cert.View - 1)
	if !ok {
		return
	}

	child := blk
	if child.Proposer == "" {
		if b, ok := e.Store.GetBlock(cert.H); ok {
			child = b
		}
	}
	if child.Proposer == "" || child.Parent != prevCert.H {
		return
	}
	prevBlk, ok := e.Store.GetBlock(prevCert.H)
	if !ok || prevBlk.Height <= e.State.Height {
		return
	}

	// the previous certificate carries the state hash its voters agreed on
	prevBlk.AppHash = prevCert.AppHash
	e.Safety.UpdateLock(prevCert, prevBlk)
	e.State.Height = prevBlk.Height

	e.Store.SaveBlock(prevBlk)
	e.Store.SetCommitted(HashOfBlock(prevBlk))
	if e.WAL != nil {
		e.WAL.Append(fmt.Sprintf("commit height=%d view=%d apphash=0x%x", prevBlk.Height, prevBlk.View, prevBlk.AppHash[:]))
	}
	e.Safety.Prune(prevBlk.Height)

	if e.VerboseLogging {
		e.Logger.Infow("commit", "height", prevBlk.Height, "committed_view", prevBlk.View, "apphash", fmt.Sprintf("0x%x", prevBlk.AppHash[:]))
	}
	if e.OnBlockCommit != nil {
		e.OnBlockCommit(prevBlk)
	}
}

// CommittedHeight is the height of the last block the double-chain rule
// committed.
func (e *Engine) CommittedHeight() Height {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.State.Height
}

func (e *Engine) leaderRound(ctx context.Context, v View) error {
	ldr := &Leader{ID: e.ID, Safety: e.Safety, App: e.App, Clock: e.PM.Clock}
	block, prop := ldr.Build(v)
	if len(block.Payload) == 0 && !e.EmptyBlocks {
		return errIdle
	}
	e.Store.SaveBlock(block)
	if e.WAL != nil {
		e.WAL.Append(fmt.Sprintf("propose v=%d h=%d", v, block.Height))
	}
	if err := e.Net.BroadcastPropose(ctx, prop); err != nil {
		return fmt.Errorf("propose: %w", err)
	}
	if e.VerboseLogging {
		e.Logger.Infow("propose_broadcasted", "height", block.Height, "view", v, "parent", prop.HighCert.H.String())
	}

	// the leader votes on its own proposal through onPropose like everyone else
	h := HashOfBlock(block)
	votes, err := e.Net.CollectVotes(ctx, v, h, e.State.Q.Need())
	if err != nil {
		return fmt.Errorf("collect votes: %w", err)
	}
	if len(votes) == 0 {
		return fmt.Errorf("no votes collected")
	}

	// divergent state hashes mean some validator executed differently
	agreed := votes[0].AppHash
	shares := make([][]byte, 0, len(votes))
	for i, vote := range votes {
		if vote.AppHash != agreed {
			return fmt.Errorf("app hash mismatch at view %d: %s has 0x%x, %s has 0x%x (vote %d)",
				v, votes[0].From, agreed[:8], vote.From, vote.AppHash[:8], i)
		}
		if len(vote.SigShare) > 0 {
			shares = append(shares, vote.SigShare)
		}
	}
	sig, err := e.Signer.Combine(shares)
	if err != nil {
		return fmt.Errorf("combine votes: %w", err)
	}

	cert := Certificate{View: v, H: h, AppHash: agreed, Sig: sig}
	e.Safety.OnPrepare(cert, block)
	if err := e.Net.BroadcastPrepare(ctx, cert); err != nil {
		return fmt.Errorf("broadcast prepare: %w", err)
	}
	return nil
}
