package chain

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// AccountRecord is the persisted form of an account. A contract is
// restored by running its constructor on InitData and then loading State.
type AccountRecord struct {
	Address  common.Address `json:"address"`
	Balance  *uint256.Int   `json:"balance"`
	Nonce    uint64         `json:"nonce"`
	Code     CodeID         `json:"code,omitempty"`
	InitData []byte         `json:"initData,omitempty"`
	State    []byte         `json:"state,omitempty"`
}

// Meta carries the runtime counters that are not tied to one account.
type Meta struct {
	LT     uint64       `json:"lt"`
	Fees   *uint256.Int `json:"fees"`
	Supply *uint256.Int `json:"supply"`
}

type AccountStore interface {
	SaveAccounts(recs []AccountRecord, meta Meta) error
	LoadAccounts() ([]AccountRecord, Meta, error)
}

// Commit persists every account touched since the previous commit.
func (c *Chain) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil || len(c.dirty) == 0 {
		c.dirty = make(map[common.Address]struct{})
		return nil
	}

	addrs := make([]common.Address, 0, len(c.dirty))
	for a := range c.dirty {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	recs := make([]AccountRecord, 0, len(addrs))
	for _, a := range addrs {
		acc := c.accounts[a]
		rec, err := acc.record()
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	meta := Meta{LT: c.lt, Fees: c.fees.Clone(), Supply: c.supply.Clone()}
	if err := c.store.SaveAccounts(recs, meta); err != nil {
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	c.dirty = make(map[common.Address]struct{})
	return nil
}

func (a *account) record() (AccountRecord, error) {
	rec := AccountRecord{Address: a.addr, Balance: a.balance.Clone(), Nonce: a.nonce, Code: a.code, InitData: a.initData}
	if a.contract != nil {
		st, err := a.contract.MarshalState()
		if err != nil {
			return AccountRecord{}, fmt.Errorf("failed to marshal %s: %w", a.addr.Hex(), err)
		}
		rec.State = st
	}
	return rec, nil
}

// Load restores accounts from the store. Codes must be registered first.
func (c *Chain) Load() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return 0, nil
	}
	recs, meta, err := c.store.LoadAccounts()
	if err != nil {
		return 0, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, rec := range recs {
		acc := &account{addr: rec.Address, balance: orZero(rec.Balance).Clone(), nonce: rec.Nonce}
		if rec.Code != "" {
			if err := c.instantiate(acc, StateInit{Code: rec.Code, Data: rec.InitData}); err != nil {
				return 0, err
			}
			if err := acc.contract.UnmarshalState(rec.State); err != nil {
				return 0, fmt.Errorf("failed to restore %s: %w", rec.Address.Hex(), err)
			}
		}
		c.accounts[rec.Address] = acc
	}
	c.lt = meta.LT
	c.fees = orZero(meta.Fees).Clone()
	c.supply = orZero(meta.Supply).Clone()
	c.log.Info("accounts_loaded", zap.Int("count", len(recs)), zap.Uint64("lt", c.lt))
	return len(recs), nil
}
