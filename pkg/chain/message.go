package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Message is a one-way, fire-and-forget transfer of value and a body
// between two accounts.
type Message struct {
	From    common.Address
	To      common.Address
	Value   *uint256.Int
	Bounce  bool // return value to From if the handler fails
	Bounced bool // this message is the return leg of a failed delivery
	Body    []byte
	Init    *StateInit
}

// Op returns the op code of the body, or 0 for an empty body.
func (m Message) Op() wire.Op {
	op, _ := wire.PeekOp(m.Body)
	return op
}

// Transaction records the outcome of delivering one message.
type Transaction struct {
	LT       uint64         `json:"lt"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Op       wire.Op        `json:"op"`
	Value    *uint256.Int   `json:"value"`
	Deploy   bool           `json:"deploy,omitempty"`
	Bounced  bool           `json:"bounced,omitempty"`
	Success  bool           `json:"success"`
	Rejected string         `json:"rejected,omitempty"` // refused and compensated by the handler
	Err      string         `json:"error,omitempty"`
	Outbound int            `json:"outbound"`
}
