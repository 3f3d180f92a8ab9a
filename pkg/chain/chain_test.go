package chain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

const (
	opIncrement wire.Op = 1
	opFail      wire.Op = 2
	opRefuse    wire.Op = 3
	opForward   wire.Op = 4

	counterCode CodeID = "counter"
)

// counter increments on every accepted message and records the order in
// which senders reached it.
type counter struct {
	Seen  []common.Address `json:"seen"`
	Count int              `json:"count"`
}

func (c *counter) Receive(ctx *Context, msg Message) error {
	if msg.Bounced {
		return nil
	}
	c.Count++
	c.Seen = append(c.Seen, msg.From)
	switch msg.Op() {
	case opIncrement:
		return nil
	case opFail:
		ctx.Send(Message{To: msg.From, Value: ctx.Value()})
		return errors.New("boom")
	case opRefuse:
		ctx.Send(Message{To: msg.From, Value: ctx.Value()})
		ctx.Reject(errors.New("refused"))
		return nil
	case opForward:
		var to common.Address
		_, raw, _ := wire.Decode(msg.Body)
		if err := wire.DecodePayload(raw, &to); err != nil {
			return err
		}
		ctx.Send(Message{To: to, Value: ctx.Value(), Bounce: true, Body: wire.MustEncode(opIncrement, 0, nil)})
		return nil
	}
	return errors.New("unknown op")
}

func (c *counter) MarshalState() ([]byte, error)    { return json.Marshal(c) }
func (c *counter) UnmarshalState(data []byte) error { *c = counter{}; return json.Unmarshal(data, c) }

func newTestChain(t *testing.T, opts ...Option) *Chain {
	t.Helper()
	c := New(Params{GasFee: uint256.NewInt(10)}, opts...)
	c.Register(counterCode, func(data []byte) (Contract, error) { return &counter{}, nil })
	return c
}

func counterInit(salt string) StateInit { return StateInit{Code: counterCode, Data: []byte(salt)} }

func body(op wire.Op) []byte { return wire.MustEncode(op, 0, nil) }

func assertConserved(t *testing.T, c *Chain) {
	t.Helper()
	got := new(uint256.Int).Add(c.TotalBalance(), c.Fees())
	if got.Cmp(c.Supply()) != 0 {
		t.Fatalf("value not conserved: balances+fees=%s supply=%s", got.Dec(), c.Supply().Dec())
	}
}

func countOf(t *testing.T, c *Chain, addr common.Address) int {
	t.Helper()
	var n int
	if err := c.View(addr, func(ct Contract) error { n = ct.(*counter).Count; return nil }); err != nil {
		t.Fatalf("view: %v", err)
	}
	return n
}

func TestDeployWithMessage(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	init := counterInit("x")
	addr := init.Address()

	for i := 0; i < 2; i++ {
		txs, err := c.Execute(context.Background(), user, Message{To: addr, Value: uint256.NewInt(100), Init: &init, Body: body(opIncrement)})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(txs) != 1 || !txs[0].Success {
			t.Fatalf("unexpected txs: %+v", txs)
		}
		if txs[0].Deploy != (i == 0) {
			t.Errorf("round %d: deploy = %v", i, txs[0].Deploy)
		}
	}
	if n := countOf(t, c, addr); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if c.Balance(addr).Uint64() != 180 {
		t.Errorf("balance = %s, want 180", c.Balance(addr).Dec())
	}
	assertConserved(t, c)
}

func TestFailureRevertsAndBounces(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	addr, err := c.Deploy(counterInit("y"))
	if err != nil {
		t.Fatal(err)
	}

	txs, err := c.Execute(context.Background(), user, Message{To: addr, Value: uint256.NewInt(100), Bounce: true, Body: body(opFail)})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("want failed tx plus bounce, got %+v", txs)
	}
	if txs[0].Success || txs[0].Err != "boom" {
		t.Errorf("first tx = %+v", txs[0])
	}
	if !txs[1].Bounced || txs[1].To != user || txs[1].Value.Uint64() != 90 {
		t.Errorf("bounce tx = %+v", txs[1])
	}
	if n := countOf(t, c, addr); n != 0 {
		t.Errorf("state not reverted, count = %d", n)
	}
	if c.Balance(user).Uint64() != 990 {
		t.Errorf("user balance = %s, want 990", c.Balance(user).Dec())
	}
	assertConserved(t, c)
}

func TestRejectKeepsCompensation(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	addr, _ := c.Deploy(counterInit("z"))

	txs, err := c.Execute(context.Background(), user, Message{To: addr, Value: uint256.NewInt(100), Bounce: true, Body: body(opRefuse)})
	if err != nil {
		t.Fatal(err)
	}
	if !txs[0].Success || txs[0].Rejected != "refused" {
		t.Fatalf("tx = %+v", txs[0])
	}
	if countOf(t, c, addr) != 1 {
		t.Error("rejected handler state should be kept")
	}
	if c.Balance(user).Uint64() != 990 {
		t.Errorf("user balance = %s, want 990", c.Balance(user).Dec())
	}
}

func TestInsufficientGas(t *testing.T) {
	tests := []struct {
		name        string
		bounce      bool
		wantBalance uint64
	}{
		{"bounceable returns value", true, 1000},
		{"non-bounceable burns value", false, 995},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChain(t)
			user := common.HexToAddress("0xa1")
			c.Credit(user, uint256.NewInt(1000))
			addr, _ := c.Deploy(counterInit("g"))

			txs, err := c.Execute(context.Background(), user, Message{To: addr, Value: uint256.NewInt(5), Bounce: tt.bounce, Body: body(opIncrement)})
			if err != nil {
				t.Fatal(err)
			}
			if txs[0].Success || txs[0].Err != ErrInsufficientGas.Error() {
				t.Errorf("tx = %+v", txs[0])
			}
			if got := c.Balance(user).Uint64(); got != tt.wantBalance {
				t.Errorf("user balance = %d, want %d", got, tt.wantBalance)
			}
			assertConserved(t, c)
		})
	}
}

func TestBounceFromMissingAccount(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	ghost := common.HexToAddress("0xdead")

	txs, err := c.Execute(context.Background(), user, Message{To: ghost, Value: uint256.NewInt(300), Bounce: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[0].Err != ErrNoAccount.Error() {
		t.Fatalf("txs = %+v", txs)
	}
	if c.Balance(user).Uint64() != 1000 {
		t.Errorf("value should come back in full, have %s", c.Balance(user).Dec())
	}

	// non-bounceable value to an unknown address creates a plain account
	if _, err := c.Execute(context.Background(), user, Message{To: ghost, Value: uint256.NewInt(300)}); err != nil {
		t.Fatal(err)
	}
	if c.Balance(ghost).Uint64() != 300 {
		t.Errorf("ghost balance = %s", c.Balance(ghost).Dec())
	}
	assertConserved(t, c)
}

func TestPairwiseFIFO(t *testing.T) {
	c := newTestChain(t)
	a := common.HexToAddress("0xa1")
	b := common.HexToAddress("0xb1")
	c.Credit(a, uint256.NewInt(1000))
	c.Credit(b, uint256.NewInt(1000))
	addr, _ := c.Deploy(counterInit("fifo"))

	order := []common.Address{a, b, a, a, b}
	for _, from := range order {
		if err := c.Submit(from, Message{To: addr, Value: uint256.NewInt(20), Body: body(opIncrement)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	var seen []common.Address
	_ = c.View(addr, func(ct Contract) error { seen = ct.(*counter).Seen; return nil })
	for i := range order {
		if seen[i] != order[i] {
			t.Fatalf("delivery %d from %s, want %s", i, seen[i].Hex(), order[i].Hex())
		}
	}
	if c.Nonce(a) != 3 || c.Nonce(b) != 2 {
		t.Errorf("nonces = %d/%d", c.Nonce(a), c.Nonce(b))
	}
}

func TestForwardChainAndBounceToContract(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	relay, _ := c.Deploy(counterInit("relay"))
	target, _ := c.Deploy(counterInit("target"))

	fwd := wire.MustEncode(opForward, 0, target)
	txs, err := c.Execute(context.Background(), user, Message{To: relay, Value: uint256.NewInt(100), Body: fwd})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[1].From != relay || txs[1].To != target || !txs[1].Success {
		t.Fatalf("txs = %+v", txs)
	}
	if c.Balance(target).Uint64() != 80 {
		t.Errorf("target balance = %s, want 80", c.Balance(target).Dec())
	}
	assertConserved(t, c)
}

func TestSubmitWithNonce(t *testing.T) {
	c := newTestChain(t)
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	addr, _ := c.Deploy(counterInit("n"))
	msg := Message{To: addr, Value: uint256.NewInt(20), Body: body(opIncrement)}

	if err := c.SubmitWithNonce(user, 2, msg); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("want nonce mismatch, got %v", err)
	}
	if err := c.SubmitWithNonce(user, 1, msg); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitWithNonce(user, 1, msg); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("replay must fail, got %v", err)
	}
	if err := c.Submit(user, Message{To: addr, Value: uint256.NewInt(5000)}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft must fail, got %v", err)
	}
}

type memStore struct {
	recs map[common.Address]AccountRecord
	meta Meta
}

func (m *memStore) SaveAccounts(recs []AccountRecord, meta Meta) error {
	for _, r := range recs {
		m.recs[r.Address] = r
	}
	m.meta = meta
	return nil
}

func (m *memStore) LoadAccounts() ([]AccountRecord, Meta, error) {
	out := make([]AccountRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, m.meta, nil
}

func TestCommitLoadPreservesStateHash(t *testing.T) {
	store := &memStore{recs: map[common.Address]AccountRecord{}}
	c := newTestChain(t, WithStore(store))
	user := common.HexToAddress("0xa1")
	c.Credit(user, uint256.NewInt(1000))
	addr, _ := c.Deploy(counterInit("p"))
	if _, err := c.Execute(context.Background(), user, Message{To: addr, Value: uint256.NewInt(50), Body: body(opIncrement)}); err != nil {
		t.Fatal(err)
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	want := c.StateHash()

	restored := newTestChain(t, WithStore(store))
	n, err := restored.Load()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("loaded %d accounts, want 2", n)
	}
	if got := restored.StateHash(); got != want {
		t.Errorf("state hash %s != %s", got.Hex(), want.Hex())
	}
	if countOf(t, restored, addr) != 1 {
		t.Error("contract state not restored")
	}
	assertConserved(t, restored)
}

func TestAddressDerivationIsPure(t *testing.T) {
	a := counterInit("same").Address()
	b := counterInit("same").Address()
	if a != b {
		t.Fatal("derivation not deterministic")
	}
	if a == counterInit("other").Address() {
		t.Fatal("different data must derive different addresses")
	}
	if a == (StateInit{Code: "other", Data: []byte("same")}).Address() {
		t.Fatal("different code must derive different addresses")
	}
}
