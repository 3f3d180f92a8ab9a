package p2p

import (
	"bytes"
	"encoding/gob"

	"github.com/ethereum/go-ethereum/common"
)

func init() {
	gob.Register(BlockAnnounce{})
	gob.Register(BlockRequestWire{})
	gob.Register(BlockResponseWire{})
	gob.Register(ProposalWire{})
	gob.Register(PrepareWire{})
	gob.Register(VoteWire{})
}

// BlockAnnounce is gossiped by the producer after every commit.
type BlockAnnounce struct {
	Height    uint64
	Hash      common.Hash
	StateHash common.Hash
	Messages  int
}

type BlockRequestWire struct {
	Height uint64
}

type BlockResponseWire struct {
	Found bool
	Block []byte // gob-encoded storage.Block
}

type ProposalWire struct {
	Block    []byte // gob-encoded consensus.Block
	HighCert []byte // gob-encoded consensus.Certificate
}

type PrepareWire struct {
	Cert []byte // gob-encoded consensus.Certificate
}

type VoteWire struct {
	Vote []byte // gob-encoded consensus.Vote
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
