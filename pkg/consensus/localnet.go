package consensus

import (
	"context"
	"fmt"
	"sync"
)

// LocalNet is the Network of a lone validator: every broadcast is handed
// straight back to its own handlers and votes never leave the process.
type LocalNet struct {
	self NodeID

	mu       sync.Mutex
	votes    map[View]map[Hash][]Vote
	handlers Handlers
}

func NewLocalNet(self NodeID) *LocalNet {
	return &LocalNet{self: self, votes: make(map[View]map[Hash][]Vote)}
}

func (n *LocalNet) SetHandlers(h Handlers) {
	n.mu.Lock()
	n.handlers = h
	n.mu.Unlock()
}

func (n *LocalNet) hooks() Handlers {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handlers
}

func (n *LocalNet) BroadcastPropose(ctx context.Context, p Propose) error {
	if h := n.hooks(); h.OnPropose != nil {
		h.OnPropose(ctx, p)
	}
	return nil
}

func (n *LocalNet) BroadcastPrepare(ctx context.Context, cert Certificate) error {
	if h := n.hooks(); h.OnPrepare != nil {
		h.OnPrepare(ctx, cert, Block{})
	}
	return nil
}

func (n *LocalNet) SendVote(_ context.Context, to NodeID, v Vote) error {
	if to != n.self {
		return fmt.Errorf("local network cannot reach %s", to)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.votes[v.View] == nil {
		n.votes[v.View] = make(map[Hash][]Vote)
	}
	n.votes[v.View][v.H] = append(n.votes[v.View][v.H], v)
	return nil
}

// CollectVotes returns immediately: the only vote was cast synchronously
// while the proposal was delivered.
func (n *LocalNet) CollectVotes(_ context.Context, view View, h Hash, need int) ([]Vote, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	got := n.votes[view][h]
	for v := range n.votes {
		if v <= view {
			delete(n.votes, v)
		}
	}
	if len(got) < need {
		return nil, fmt.Errorf("view %d: %d votes, need %d", view, len(got), need)
	}
	return got[:need], nil
}
