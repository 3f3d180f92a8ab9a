package node

import (
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/consensus"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// NewConsensus builds the HotStuff engine that orders blocks for app.
// Validators default to self alone; the chain continues from the app's
// head so a restarted node keeps its heights.
func NewConsensus(app *App, cfg params.Config, net consensus.Network, self consensus.NodeID, log *zap.SugaredLogger) *consensus.Engine {
	ids := []consensus.NodeID{self}
	if len(cfg.Consensus.Validators) > 0 {
		ids = ids[:0]
		for _, v := range cfg.Consensus.Validators {
			ids = append(ids, consensus.NodeID(v))
		}
	}

	head, _ := app.Head()
	state := consensus.NewState(self, consensus.NewQuorum(len(ids)), consensus.GenesisBlock(consensus.Height(head)))
	safety := consensus.NewSafety(state)
	pm := consensus.NewPacemaker(
		consensus.PacemakerTimers{Ppc: cfg.Consensus.Ppc, Delta: cfg.Consensus.Delta},
		app.Clock(),
		state,
	)
	bridge := &abci.Bridge{App: app, MaxTxs: app.MaxBlockTxs()}

	e := consensus.NewEngine(state, safety, pm, bridge, net, consensus.RoundRobinElector{IDs: ids}, crypto.DummySigner{})
	e.MinBlockTime = cfg.Node.MinBlockTime
	e.VerboseLogging = cfg.Consensus.Verbose
	if log != nil {
		e.Logger = log
	}
	return e
}
