// Package abci is the boundary between the block producer and the
// application that executes blocks.
package abci

import "github.com/ethereum/go-ethereum/common"

type RequestPrepareProposal struct {
	Height     uint64
	MaxTxBytes int64
	MaxTxs     int
}
type ResponsePrepareProposal struct{ Txs [][]byte }

type RequestProcessProposal struct {
	Height uint64
	Txs    [][]byte
}
type ResponseProcessProposal struct {
	Accept bool
	Reason string
}

type RequestFinalizeBlock struct {
	Height    uint64
	Timestamp uint64 // unix millis
	Txs       [][]byte
}

// TxResult is the admission outcome of one signed message in a block.
type TxResult struct {
	Sender common.Address `json:"sender"`
	Nonce  uint64         `json:"nonce"`
	Error  string         `json:"error,omitempty"`
}

type ResponseFinalizeBlock struct {
	Events  []string
	Results []TxResult
	AppHash common.Hash // hash of application state after execution
}

type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) (ResponseFinalizeBlock, error)
}
