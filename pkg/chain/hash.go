package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// StateHash is a deterministic digest of every account.
//
// Components hashed, accounts sorted by address:
//  1. address (20 bytes)
//  2. balance (32 bytes, big-endian)
//  3. nonce (8 bytes, big-endian)
//  4. code id and contract state, length-prefixed
//
// followed by the burned fees.
func (c *Chain) StateHash() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs := make([]common.Address, 0, len(c.accounts))
	for a := range c.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	h := sha256.New()
	var n [8]byte
	writeBytes := func(b []byte) {
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	for _, a := range addrs {
		acc := c.accounts[a]
		h.Write(a[:])
		bal := acc.balance.Bytes32()
		h.Write(bal[:])
		binary.BigEndian.PutUint64(n[:], acc.nonce)
		h.Write(n[:])
		writeBytes([]byte(acc.code))
		if acc.contract != nil {
			st, err := acc.contract.MarshalState()
			if err != nil {
				st = []byte(err.Error())
			}
			writeBytes(st)
		}
	}
	fees := c.fees.Bytes32()
	h.Write(fees[:])

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
