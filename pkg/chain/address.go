package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// CodeID names a registered contract implementation. It plays the role of
// contract code: two accounts with the same CodeID and init data share an
// address.
type CodeID string

// StateInit is attached to a message to deploy the destination on first
// delivery. It is ignored when the destination already holds a contract.
type StateInit struct {
	Code CodeID
	Data []byte
}

// Address derives the account address of a StateInit:
// keccak256(code || 0x00 || data)[12:].
func (si StateInit) Address() common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(si.Code))
	h.Write([]byte{0})
	h.Write(si.Data)
	var out common.Address
	copy(out[:], h.Sum(nil)[12:])
	return out
}
