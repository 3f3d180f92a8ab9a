// Package chain is a deterministic actor runtime.
//
// Every account is an actor addressed by a 20-byte address. Actors talk
// only through one-way messages that are delivered from a single FIFO
// queue, so messages between any ordered pair of accounts arrive in send
// order and every contract handles its messages strictly one at a time.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

var (
	ErrInsufficientGas     = errors.New("inbound value below gas fee")
	ErrInsufficientBalance = errors.New("outbound value exceeds balance")
	ErrUnknownCode         = errors.New("unknown contract code")
	ErrNoAccount           = errors.New("destination account does not exist")
	ErrNonceMismatch       = errors.New("nonce mismatch")
	ErrMaxSteps            = errors.New("message queue did not settle")
	ErrNotContract         = errors.New("account holds no contract")
)

type Params struct {
	GasFee   *uint256.Int
	MaxSteps int
}

func DefaultParams() Params {
	return Params{GasFee: uint256.NewInt(10_000_000), MaxSteps: 100_000}
}

type account struct {
	addr     common.Address
	balance  *uint256.Int
	nonce    uint64
	code     CodeID
	initData []byte
	contract Contract
}

// AccountInfo is a read-only snapshot of an account.
type AccountInfo struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	Code    CodeID         `json:"code,omitempty"`
}

type Option func(*Chain)

func WithLogger(l *zap.Logger) Option { return func(c *Chain) { c.log = l } }

func WithStore(s AccountStore) Option { return func(c *Chain) { c.store = s } }

type Chain struct {
	mu       sync.Mutex
	params   Params
	codes    map[CodeID]Constructor
	accounts map[common.Address]*account
	queue    []Message
	lt       uint64
	fees     *uint256.Int
	supply   *uint256.Int
	dirty    map[common.Address]struct{}
	store    AccountStore
	log      *zap.Logger
}

func New(params Params, opts ...Option) *Chain {
	if params.GasFee == nil {
		params.GasFee = DefaultParams().GasFee
	}
	if params.MaxSteps <= 0 {
		params.MaxSteps = DefaultParams().MaxSteps
	}
	c := &Chain{
		params:   params,
		codes:    make(map[CodeID]Constructor),
		accounts: make(map[common.Address]*account),
		fees:     new(uint256.Int),
		supply:   new(uint256.Int),
		dirty:    make(map[common.Address]struct{}),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register binds a code id to its constructor.
func (c *Chain) Register(id CodeID, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[id] = ctor
}

func (c *Chain) GasFee() *uint256.Int { return c.params.GasFee.Clone() }

// Credit mints native value into an account. It is the only way native
// supply grows and is meant for genesis and test funding.
func (c *Chain) Credit(addr common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc := c.getOrCreate(addr)
	acc.balance.Add(acc.balance, amount)
	c.supply.Add(c.supply, amount)
	c.dirty[addr] = struct{}{}
}

// Deploy installs a contract directly, outside of any message. Used at
// genesis for singletons. Deploying onto an existing contract is a no-op.
func (c *Chain) Deploy(init StateInit) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := init.Address()
	acc := c.getOrCreate(addr)
	if acc.contract != nil {
		return addr, nil
	}
	if err := c.instantiate(acc, init); err != nil {
		return common.Address{}, err
	}
	c.dirty[addr] = struct{}{}
	c.log.Info("contract_deployed", zap.String("addr", addr.Hex()), zap.String("code", string(init.Code)))
	return addr, nil
}

// Submit injects an external message from a plain account. The value is
// debited immediately and the sender's nonce advances.
func (c *Chain) Submit(from common.Address, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(from, msg)
}

// SubmitWithNonce is Submit guarded by the sender's next expected nonce.
func (c *Chain) SubmitWithNonce(from common.Address, nonce uint64, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cur uint64
	if acc, ok := c.accounts[from]; ok {
		cur = acc.nonce
	}
	if nonce != cur+1 {
		return fmt.Errorf("%w: have %d, want %d", ErrNonceMismatch, nonce, cur+1)
	}
	return c.submitLocked(from, msg)
}

func (c *Chain) submitLocked(from common.Address, msg Message) error {
	acc, ok := c.accounts[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAccount, from.Hex())
	}
	if acc.contract != nil {
		return fmt.Errorf("external message from contract %s", from.Hex())
	}
	value := orZero(msg.Value)
	if acc.balance.Lt(value) {
		return fmt.Errorf("%w: balance %s, value %s", ErrInsufficientBalance, acc.balance.Dec(), value.Dec())
	}
	acc.balance.Sub(acc.balance, value)
	acc.nonce++
	c.dirty[from] = struct{}{}

	msg.From = from
	msg.Value = value.Clone()
	msg.Bounced = false
	c.queue = append(c.queue, msg)
	return nil
}

// Run delivers queued messages until the queue is empty.
func (c *Chain) Run(ctx context.Context) ([]Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var txs []Transaction
	for steps := 0; len(c.queue) > 0; steps++ {
		if steps >= c.params.MaxSteps {
			return txs, fmt.Errorf("%w after %d steps", ErrMaxSteps, steps)
		}
		if err := ctx.Err(); err != nil {
			return txs, err
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		txs = append(txs, c.deliver(msg))
	}
	c.queue = nil
	return txs, nil
}

// Execute submits one external message and runs the queue to quiescence.
func (c *Chain) Execute(ctx context.Context, from common.Address, msg Message) ([]Transaction, error) {
	if err := c.Submit(from, msg); err != nil {
		return nil, err
	}
	return c.Run(ctx)
}

func (c *Chain) getOrCreate(addr common.Address) *account {
	acc, ok := c.accounts[addr]
	if !ok {
		acc = &account{addr: addr, balance: new(uint256.Int)}
		c.accounts[addr] = acc
	}
	return acc
}

func (c *Chain) instantiate(acc *account, init StateInit) error {
	ctor, ok := c.codes[init.Code]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCode, init.Code)
	}
	contract, err := ctor(init.Data)
	if err != nil {
		return fmt.Errorf("failed to construct %q: %w", init.Code, err)
	}
	acc.code = init.Code
	acc.initData = append([]byte(nil), init.Data...)
	acc.contract = contract
	return nil
}

func (c *Chain) enqueueBounce(msg Message, value *uint256.Int) {
	c.queue = append(c.queue, Message{
		From:    msg.To,
		To:      msg.From,
		Value:   value,
		Bounced: true,
		Body:    wire.Bounce(msg.Body),
	})
}

// deliver runs one message through the destination's handler.
func (c *Chain) deliver(msg Message) Transaction {
	c.lt++
	value := orZero(msg.Value)
	tx := Transaction{LT: c.lt, From: msg.From, To: msg.To, Op: msg.Op(), Value: value.Clone(), Bounced: msg.Bounced}
	canBounce := msg.Bounce && !msg.Bounced

	acc, exists := c.accounts[msg.To]
	deployable := msg.Init != nil && msg.Init.Address() == msg.To
	if !exists && !deployable && canBounce {
		tx.Err = ErrNoAccount.Error()
		c.enqueueBounce(msg, value.Clone())
		tx.Outbound = 1
		c.log.Debug("tx_bounced", zap.Uint64("lt", tx.LT), zap.String("to", msg.To.Hex()), zap.String("reason", tx.Err))
		return tx
	}
	acc = c.getOrCreate(msg.To)
	c.dirty[msg.To] = struct{}{}

	if acc.contract == nil && deployable {
		if err := c.instantiate(acc, *msg.Init); err != nil {
			c.log.Warn("deploy_failed", zap.String("addr", msg.To.Hex()), zap.Error(err))
			if canBounce {
				tx.Err = err.Error()
				c.enqueueBounce(msg, value.Clone())
				tx.Outbound = 1
				return tx
			}
		} else {
			tx.Deploy = true
		}
	}

	acc.balance.Add(acc.balance, value)
	if acc.contract == nil {
		tx.Success = true
		return tx
	}

	fee := c.params.GasFee
	if value.Lt(fee) {
		tx.Err = ErrInsufficientGas.Error()
		acc.balance.Sub(acc.balance, value)
		if canBounce && !value.IsZero() {
			c.enqueueBounce(msg, value.Clone())
			tx.Outbound = 1
		} else {
			c.fees.Add(c.fees, value)
		}
		return tx
	}
	acc.balance.Sub(acc.balance, fee)
	c.fees.Add(c.fees, fee)

	snapshot, err := acc.contract.MarshalState()
	if err != nil {
		// A contract that cannot snapshot cannot be reverted; refuse to run it.
		tx.Err = fmt.Sprintf("snapshot: %v", err)
		c.failDelivery(acc, msg, &tx, value, fee, canBounce)
		return tx
	}

	ctx := &Context{
		self:   acc,
		msg:    msg,
		value:  new(uint256.Int).Sub(value, fee),
		gasFee: fee.Clone(),
		lt:     c.lt,
		log:    c.log.With(zap.String("contract", string(acc.code)), zap.String("addr", acc.addr.Hex())),
	}
	herr := acc.contract.Receive(ctx, msg)
	if herr == nil {
		total := new(uint256.Int)
		for _, m := range ctx.out {
			total.Add(total, m.Value)
		}
		if acc.balance.Lt(total) {
			herr = fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total.Dec(), acc.balance.Dec())
		} else {
			acc.balance.Sub(acc.balance, total)
		}
	}
	if herr != nil {
		if rerr := acc.contract.UnmarshalState(snapshot); rerr != nil {
			c.log.Error("state_revert_failed", zap.String("addr", acc.addr.Hex()), zap.Error(rerr))
		}
		tx.Err = herr.Error()
		c.failDelivery(acc, msg, &tx, value, fee, canBounce)
		return tx
	}

	c.queue = append(c.queue, ctx.out...)
	tx.Outbound = len(ctx.out)
	tx.Success = true
	if ctx.reject != nil {
		tx.Rejected = ctx.reject.Error()
		c.log.Info("tx_rejected", zap.Uint64("lt", tx.LT), zap.String("to", msg.To.Hex()), zap.String("reason", tx.Rejected))
	}
	return tx
}

// failDelivery returns the unspent inbound value to the sender when the
// message is bounceable; otherwise it stays with the destination.
func (c *Chain) failDelivery(acc *account, msg Message, tx *Transaction, value, fee *uint256.Int, canBounce bool) {
	c.log.Debug("tx_failed", zap.Uint64("lt", tx.LT), zap.String("to", msg.To.Hex()), zap.String("op", tx.Op.String()), zap.String("err", tx.Err))
	if !canBounce {
		return
	}
	refund := SatSub(value, fee)
	if refund.IsZero() {
		return
	}
	acc.balance.Sub(acc.balance, refund)
	c.enqueueBounce(msg, refund)
	tx.Outbound = 1
}

// Balance returns the native balance of addr.
func (c *Chain) Balance(addr common.Address) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acc, ok := c.accounts[addr]; ok {
		return acc.balance.Clone()
	}
	return new(uint256.Int)
}

// Nonce returns the number of external messages addr has submitted.
func (c *Chain) Nonce(addr common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acc, ok := c.accounts[addr]; ok {
		return acc.nonce
	}
	return 0
}

// Account returns a snapshot of one account.
func (c *Chain) Account(addr common.Address) (AccountInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[addr]
	if !ok {
		return AccountInfo{}, false
	}
	return acc.info(), true
}

func (a *account) info() AccountInfo {
	return AccountInfo{Address: a.addr, Balance: a.balance.Clone(), Nonce: a.nonce, Code: a.code}
}

// View calls fn with the contract at addr while holding the runtime lock.
// fn must not retain the contract or mutate it.
func (c *Chain) View(addr common.Address, fn func(Contract) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.accounts[addr]
	if !ok || acc.contract == nil {
		return fmt.Errorf("%w: %s", ErrNotContract, addr.Hex())
	}
	return fn(acc.contract)
}

// Fees returns the total compute fees burned so far.
func (c *Chain) Fees() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fees.Clone()
}

// Supply returns the total native value ever credited.
func (c *Chain) Supply() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supply.Clone()
}

// TotalBalance sums every account balance. With an empty queue,
// TotalBalance + Fees == Supply.
func (c *Chain) TotalBalance() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := new(uint256.Int)
	for _, acc := range c.accounts {
		total.Add(total, acc.balance)
	}
	return total
}

// Pending reports the number of undelivered messages.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
