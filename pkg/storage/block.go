package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

// Block is one batch of external messages and every transaction they
// produced, run to quiescence.
type Block struct {
	Height    uint64              `json:"height"`
	Parent    common.Hash         `json:"parent"`
	Time      uint64              `json:"time"` // unix millis
	StateHash common.Hash         `json:"stateHash"`
	Messages  [][]byte            `json:"messages"` // signed external messages, as received
	Txs       []chain.Transaction `json:"txs"`
}

type header struct {
	Height    uint64
	Parent    common.Hash
	Time      uint64
	StateHash common.Hash
	MsgRoot   common.Hash
}

// Hash commits to the header and the ordered message list. Transactions
// are a deterministic function of both and are not hashed.
func (b Block) Hash() common.Hash {
	msgs := make([]byte, 0, len(b.Messages)*common.HashLength)
	for _, m := range b.Messages {
		msgs = append(msgs, crypto.Keccak256(m)...)
	}
	enc, _ := rlp.EncodeToBytes(header{
		Height:    b.Height,
		Parent:    b.Parent,
		Time:      b.Time,
		StateHash: b.StateHash,
		MsgRoot:   crypto.Keccak256Hash(msgs),
	})
	return crypto.Keccak256Hash(enc)
}

type BlockStore interface {
	SaveBlock(b Block) error
	GetBlock(height uint64) (Block, bool)
	GetBlockByHash(h common.Hash) (Block, bool)
	// Head returns the height of the latest saved block.
	Head() (uint64, bool)
}
