package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/uhyunpark/hyperswap/pkg/consensus"
)

// voteTimeout bounds how long a leader waits for a quorum.
const voteTimeout = 3 * time.Second

func (n *Libp2pNet) BroadcastPropose(ctx context.Context, p consensus.Propose) error {
	bb, err := gobEncode(p.Block)
	if err != nil {
		return err
	}
	hh, err := gobEncode(p.HighCert)
	if err != nil {
		return err
	}
	data, err := gobEncode(ProposalWire{Block: bb, HighCert: hh})
	if err != nil {
		return err
	}
	return n.tPropose.Publish(ctx, data)
}

// BroadcastPrepare publishes a certificate. Validators already hold the
// block from its proposal.
func (n *Libp2pNet) BroadcastPrepare(ctx context.Context, cert consensus.Certificate) error {
	cb, err := gobEncode(cert)
	if err != nil {
		return err
	}
	data, err := gobEncode(PrepareWire{Cert: cb})
	if err != nil {
		return err
	}
	return n.tPrepare.Publish(ctx, data)
}

// SendVote hands a vote to the leader. Validator IDs are peer IDs, so a
// remote leader is dialed directly.
func (n *Libp2pNet) SendVote(ctx context.Context, to consensus.NodeID, v consensus.Vote) error {
	if to == n.NodeID() {
		n.storeVote(v)
		return nil
	}
	pid, err := peer.Decode(string(to))
	if err != nil {
		return fmt.Errorf("leader %s: %w", to, err)
	}
	vb, err := gobEncode(v)
	if err != nil {
		return err
	}
	data, err := gobEncode(VoteWire{Vote: vb})
	if err != nil {
		return err
	}

	stream, err := n.h.NewStream(ctx, pid, protocolVote)
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = stream.Write(data)
	return err
}

func (n *Libp2pNet) storeVote(v consensus.Vote) {
	n.muVotes.Lock()
	if n.votes[v.View] == nil {
		n.votes[v.View] = make(map[consensus.Hash][]consensus.Vote)
	}
	n.votes[v.View][v.H] = append(n.votes[v.View][v.H], v)
	n.muVotes.Unlock()

	select {
	case n.voteArrivedCh <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// take returns need votes for (view, h) if they have arrived, dropping
// the tallies of that view and earlier ones.
func (n *Libp2pNet) take(view consensus.View, h consensus.Hash, need int) ([]consensus.Vote, bool) {
	n.muVotes.Lock()
	defer n.muVotes.Unlock()
	got := n.votes[view][h]
	if len(got) < need {
		return nil, false
	}
	out := append([]consensus.Vote(nil), got[:need]...)
	for v := range n.votes {
		if v <= view {
			delete(n.votes, v)
		}
	}
	return out, true
}

func (n *Libp2pNet) CollectVotes(ctx context.Context, view consensus.View, h consensus.Hash, need int) ([]consensus.Vote, error) {
	if out, ok := n.take(view, h, need); ok {
		return out, nil
	}
	deadline := time.NewTimer(voteTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if out, ok := n.take(view, h, need); ok {
				return out, nil
			}
			return nil, errors.New("timeout collecting votes")
		case <-n.voteArrivedCh:
			if out, ok := n.take(view, h, need); ok {
				return out, nil
			}
		}
	}
}

// inbound

func (n *Libp2pNet) consensusHandlers() consensus.Handlers {
	n.muH.RLock()
	defer n.muH.RUnlock()
	return n.consensus
}

// handlePropose also delivers this node's own proposals, so the leader
// votes through the same path as everyone else.
func (n *Libp2pNet) handlePropose(ctx context.Context) {
	for {
		msg, err := n.subPropose.Next(ctx)
		if err != nil {
			return
		}
		var w ProposalWire
		if err := gobDecode(msg.Data, &w); err != nil {
			n.log.Debugw("bad_propose", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		var blk consensus.Block
		var hc consensus.Certificate
		if err := gobDecode(w.Block, &blk); err != nil {
			continue
		}
		if err := gobDecode(w.HighCert, &hc); err != nil {
			continue
		}
		if h := n.consensusHandlers(); h.OnPropose != nil {
			h.OnPropose(ctx, consensus.Propose{Block: blk, HighCert: hc})
		}
	}
}

func (n *Libp2pNet) handlePrepare(ctx context.Context) {
	for {
		msg, err := n.subPrepare.Next(ctx)
		if err != nil {
			return
		}
		var w PrepareWire
		if err := gobDecode(msg.Data, &w); err != nil {
			n.log.Debugw("bad_prepare", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		var cert consensus.Certificate
		if err := gobDecode(w.Cert, &cert); err != nil {
			continue
		}
		if h := n.consensusHandlers(); h.OnPrepare != nil {
			h.OnPrepare(ctx, cert, consensus.Block{})
		}
	}
}

// handleVoteStream receives one vote per stream from a follower.
func (n *Libp2pNet) handleVoteStream(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(io.LimitReader(s, 4096))
	if err != nil {
		return
	}
	var w VoteWire
	if err := gobDecode(data, &w); err != nil {
		return
	}
	var v consensus.Vote
	if err := gobDecode(w.Vote, &v); err != nil {
		return
	}
	n.storeVote(v)
}
