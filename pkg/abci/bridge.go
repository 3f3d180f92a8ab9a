package abci

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/consensus"
)

var ErrProposalRejected = errors.New("proposal rejected")

// Bridge lets the consensus engine drive an Application.
type Bridge struct {
	App        Application
	MaxTxBytes int64
	MaxTxs     int
}

var _ consensus.AppHook = (*Bridge)(nil)

func (b *Bridge) PreparePayload(_ consensus.Block, next consensus.Height) []byte {
	resp := b.App.PrepareProposal(RequestPrepareProposal{Height: uint64(next), MaxTxBytes: b.MaxTxBytes, MaxTxs: b.MaxTxs})
	return JoinPayload(resp.Txs)
}

// OnCommit checks the proposal with the application, then executes it.
func (b *Bridge) OnCommit(blk consensus.Block) (consensus.Hash, error) {
	txs := SplitPayload(blk.Payload)
	height := uint64(blk.Height)
	if resp := b.App.ProcessProposal(RequestProcessProposal{Height: height, Txs: txs}); !resp.Accept {
		return consensus.Hash{}, fmt.Errorf("%w at height %d: %s", ErrProposalRejected, height, resp.Reason)
	}
	resp, err := b.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    height,
		Timestamp: uint64(blk.Time.UnixMilli()),
		Txs:       txs,
	})
	if err != nil {
		return consensus.Hash{}, err
	}
	return consensus.Hash(resp.AppHash), nil
}

// JoinPayload concatenates messages with a 0x00 delimiter. Signed messages
// are JSON text, which never contains a raw NUL byte.
func JoinPayload(txs [][]byte) []byte {
	var payload []byte
	for _, tx := range txs {
		payload = append(payload, tx...)
		payload = append(payload, 0x00)
	}
	return payload
}

func SplitPayload(p []byte) [][]byte {
	var out [][]byte
	cur := make([]byte, 0, len(p))
	for _, b := range p {
		if b == 0x00 {
			if len(cur) > 0 {
				out = append(out, append([]byte(nil), cur...))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, b)
	}
	if len(cur) > 0 {
		out = append(out, append([]byte(nil), cur...))
	}
	return out
}
