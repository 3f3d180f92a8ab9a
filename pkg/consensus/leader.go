package consensus

import "github.com/uhyunpark/hyperswap/pkg/util"

type LeaderElector interface{ LeaderOf(v View) NodeID }

type RoundRobinElector struct{ IDs []NodeID }

func (r RoundRobinElector) LeaderOf(v View) NodeID {
	if len(r.IDs) == 0 {
		return NodeID("unknown")
	}
	idx := int(v)
	if idx <= 0 {
		idx = 1
	}
	return r.IDs[(idx-1)%len(r.IDs)]
}

type Leader struct {
	ID     NodeID
	Safety *Safety
	App    AppHook
	Clock  util.Clock
}

// Build extends the block of the highest certificate.
func (l *Leader) Build(view View) (Block, Propose) {
	high := l.Safety.HighestCert()
	parent, ok := l.Safety.BlockByHash(high.H)
	if !ok {
		parent = l.Safety.state.Genesis
	}
	payload := l.App.PreparePayload(parent, parent.Height+1)
	b := Block{
		Height: parent.Height + 1, View: view, Parent: high.H,
		Payload: payload, Proposer: l.ID, Time: l.Clock.Now(),
	}
	return b, Propose{Block: b, HighCert: high, HighDouble: l.Safety.HighestDouble()}
}
