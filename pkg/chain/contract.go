package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Contract is an actor. Receive handles exactly one message; the runtime
// never calls it concurrently for the same account. Returning an error
// reverts the contract to its state before the call and drops every
// message it sent.
type Contract interface {
	Receive(ctx *Context, msg Message) error
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Constructor instantiates a contract from its StateInit data.
type Constructor func(data []byte) (Contract, error)

// Context is the view a contract has of the runtime while handling one
// message. It only exposes the contract's own account.
type Context struct {
	self   *account
	msg    Message
	value  *uint256.Int
	gasFee *uint256.Int
	lt     uint64
	out    []Message
	reject error
	log    *zap.Logger
}

func (c *Context) Self() common.Address   { return c.self.addr }
func (c *Context) Sender() common.Address { return c.msg.From }
func (c *Context) LT() uint64             { return c.lt }
func (c *Context) Logger() *zap.Logger    { return c.log }

// Value is the inbound value left after the compute fee.
func (c *Context) Value() *uint256.Int { return c.value.Clone() }

// Balance is the account balance including the inbound value, before any
// outbound message is paid.
func (c *Context) Balance() *uint256.Int { return c.self.balance.Clone() }

// GasFee is the compute fee every contract delivery costs.
func (c *Context) GasFee() *uint256.Int { return c.gasFee.Clone() }

// Send queues an outbound message from this contract. Messages are
// released only if the handler returns nil.
func (c *Context) Send(m Message) {
	m.From = c.self.addr
	m.Value = orZero(m.Value).Clone()
	c.out = append(c.out, m)
}

// SendBody is Send with an encoded body.
func (c *Context) SendBody(to common.Address, value *uint256.Int, bounce bool, op wire.Op, queryID uint64, payload any) error {
	body, err := wire.Encode(op, queryID, payload)
	if err != nil {
		return err
	}
	c.Send(Message{To: to, Value: value, Bounce: bounce, Body: body})
	return nil
}

// Reject records that the handler refused the message after compensating
// the sender itself. State changes and outbound messages are kept.
func (c *Context) Reject(err error) { c.reject = err }

// Outbound returns the messages queued so far.
func (c *Context) Outbound() []Message { return c.out }
