package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	acc:<20-byte address> -> chain.AccountRecord (json)
//	meta                  -> chain.Meta (json)
//	blk:<8-byte height>   -> Block (gob)
//	bh:<32-byte hash>     -> 8-byte height
//	head                  -> 8-byte height of the latest block
const (
	prefixAccount   = "acc:"
	prefixBlock     = "blk:"
	prefixBlockHash = "bh:"
)

func accountKey(addr common.Address) []byte {
	return append([]byte(prefixAccount), addr[:]...)
}

func kMeta() []byte { return []byte("meta") }
func kHead() []byte { return []byte("head") }

func kBlock(height uint64) []byte {
	return append([]byte(prefixBlock), heightKey(height)...)
}

func kBlockHash(h common.Hash) []byte {
	return append([]byte(prefixBlockHash), h[:]...)
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
