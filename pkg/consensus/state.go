package consensus

import "time"

type State struct {
	Q        Quorum
	SelfID   NodeID
	Height   Height // last committed height
	View     View
	Locked   *Locked
	HighCert *Certificate
	Genesis  Block
}

// GenesisBlock anchors the chain at height. A node restarted over a
// persisted ledger passes its head so new blocks continue from it.
func GenesisBlock(height Height) Block {
	return Block{
		Height: height, View: 0, Parent: Hash{},
		Payload: nil, Proposer: NodeID("genesis"), Time: time.Unix(0, 0),
	}
}

// NewState starts a validator at the given genesis.
func NewState(self NodeID, q Quorum, genesis Block) *State {
	return &State{Q: q, SelfID: self, Height: genesis.Height, Genesis: genesis}
}
