package node

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/mempool"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/swap"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

type testNode struct {
	t       *testing.T
	cfg     params.Config
	app     *App
	genesis Genesis
	accts   *storage.InMemoryAccountStore
	blocks  *storage.InMemoryBlockStore
	eip712  *crypto.EIP712Signer
	alice   *crypto.Signer
	nonce   uint64
}

func testConfig(alice common.Address) params.Config {
	cfg := params.Default()
	cfg.Node.Genesis = []string{alice.Hex() + "=100000000000"} // 100 coins
	cfg.Node.DemoJettons = []string{"AAA"}
	return cfg
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	alice, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	n := &testNode{
		t:      t,
		cfg:    testConfig(alice.Address()),
		accts:  storage.NewInMemoryAccountStore(),
		blocks: storage.NewInMemoryBlockStore(),
		eip712: crypto.NewEIP712Signer(crypto.DefaultDomain()),
		alice:  alice,
	}
	n.restart()
	return n
}

// restart rebuilds chain and app over the same stores.
func (n *testNode) restart() {
	n.t.Helper()
	c, g, err := NewChain(n.cfg, n.accts, zap.NewNop())
	if err != nil {
		n.t.Fatal(err)
	}
	app, err := NewApp(c, n.blocks, NewVerifier(crypto.DefaultDomain()),
		WithClock(util.NewManualClock(time.UnixMilli(1_700_000_000_000))))
	if err != nil {
		n.t.Fatal(err)
	}
	n.app, n.genesis = app, g
}

func (n *testNode) sign(msg chain.Message) []byte {
	n.t.Helper()
	n.nonce++
	sm, err := NewSignedMessage(n.eip712, n.alice, msg, n.nonce)
	if err != nil {
		n.t.Fatal(err)
	}
	raw, err := sm.Serialize()
	if err != nil {
		n.t.Fatal(err)
	}
	return raw
}

func (n *testNode) nativeOrder(id uint32) chain.Message {
	minter := n.genesis.Jettons["AAA"]
	vault := swap.VaultAddress(n.genesis.Master, n.alice.Address())
	return chain.Message{
		To:     n.genesis.Master,
		Value:  chain.Coins(11),
		Bounce: true,
		Body: swap.CreateNativeOrderBody(uint64(id), swap.CreateNativeOrder{
			OrderID:    id,
			FromAmount: chain.Coins(10),
			ToAddress:  jetton.WalletAddress(minter, vault),
			ToAmount:   chain.Coins(20),
			ToRoot:     minter,
		}),
	}
}

func (n *testNode) vaultOrders() []swap.Order {
	var orders []swap.Order
	vault := swap.VaultAddress(n.genesis.Master, n.alice.Address())
	_ = n.app.Chain().View(vault, func(ct chain.Contract) error {
		orders = ct.(*swap.Vault).Orders()
		return nil
	})
	return orders
}

func TestProduceBlock(t *testing.T) {
	n := newTestNode(t)
	var committed []storage.Block
	n.app.OnBlock = func(b storage.Block) { committed = append(committed, b) }

	if _, ok, err := n.app.ProduceBlock(); ok || err != nil {
		t.Fatalf("empty mempool produced a block: %v %v", ok, err)
	}

	if err := n.app.CheckTx(n.sign(n.nativeOrder(1))); err != nil {
		t.Fatal(err)
	}
	if err := n.app.CheckTx(n.sign(n.nativeOrder(2))); err != nil {
		t.Fatal(err)
	}
	b, ok, err := n.app.ProduceBlock()
	if err != nil || !ok {
		t.Fatalf("produce: %v %v", ok, err)
	}
	if b.Height != 1 || len(b.Messages) != 2 || b.Time != 1_700_000_000_000 {
		t.Fatalf("block = height %d msgs %d time %d", b.Height, len(b.Messages), b.Time)
	}
	if b.StateHash != n.app.Chain().StateHash() {
		t.Error("block state hash is not the chain state hash")
	}
	if len(committed) != 1 || committed[0].Hash() != b.Hash() {
		t.Error("OnBlock not called with the block")
	}
	if got := len(n.vaultOrders()); got != 2 {
		t.Fatalf("vault orders = %d, want 2", got)
	}
	if n.app.Mempool().Len() != 0 {
		t.Error("mempool not drained")
	}

	if err := n.app.CheckTx(n.sign(n.nativeOrder(3))); err != nil {
		t.Fatal(err)
	}
	b2, _, err := n.app.ProduceBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b2.Parent != b.Hash() {
		t.Error("block 2 does not link to block 1")
	}
	if h, hash := n.app.Head(); h != 2 || hash != b2.Hash() {
		t.Errorf("head = %d %s", h, hash.Hex())
	}
}

func TestCheckTxRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  func(n *testNode) []byte
		want string
	}{
		{
			name: "malformed",
			raw:  func(n *testNode) []byte { return []byte("{") },
			want: "unmarshal",
		},
		{
			name: "tampered value",
			raw: func(n *testNode) []byte {
				sm, _ := ParseSignedMessage(n.sign(n.nativeOrder(1)))
				sm.Value = chain.Coins(50).Dec()
				raw, _ := sm.Serialize()
				return raw
			},
			want: "signature invalid",
		},
		{
			name: "stale nonce",
			raw: func(n *testNode) []byte {
				first := n.sign(n.nativeOrder(1))
				if _, err := n.app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 1, Txs: [][]byte{first}}); err != nil {
					n.t.Fatal(err)
				}
				n.nonce = 0
				return n.sign(n.nativeOrder(2))
			},
			want: ErrStaleNonce.Error(),
		},
		{
			name: "duplicate",
			raw: func(n *testNode) []byte {
				raw := n.sign(n.nativeOrder(1))
				if err := n.app.CheckTx(raw); err != nil {
					n.t.Fatal(err)
				}
				return raw
			},
			want: mempool.ErrDuplicate.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t)
			err := n.app.CheckTx(tt.raw(n))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFinalizeSkipsBadNonce(t *testing.T) {
	n := newTestNode(t)
	before := n.app.Chain().Balance(n.alice.Address())

	n.nonce = 1 // first message carries nonce 2
	skipped := n.sign(n.nativeOrder(1))
	n.nonce = 0
	good := n.sign(n.nativeOrder(2))

	resp, err := n.app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 1, Timestamp: 1, Txs: [][]byte{skipped, good}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || !strings.Contains(resp.Results[0].Error, "nonce") || resp.Results[1].Error != "" {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.AppHash != n.app.Chain().StateHash() {
		t.Error("app hash mismatch")
	}
	orders := n.vaultOrders()
	if len(orders) != 1 || orders[0].ID != 2 {
		t.Fatalf("orders = %+v", orders)
	}
	spent := new(uint256.Int).Sub(before, n.app.Chain().Balance(n.alice.Address()))
	if spent.Gt(chain.Coins(11)) {
		t.Errorf("alice spent %s on one order", spent.Dec())
	}
	var sawCreate bool
	for _, ev := range resp.Events {
		if ev == "vault_native_order:success" {
			sawCreate = true
		}
	}
	if !sawCreate {
		t.Errorf("events = %v", resp.Events)
	}
}

func TestFinalizeWrongHeight(t *testing.T) {
	n := newTestNode(t)
	_, err := n.app.FinalizeBlock(abci.RequestFinalizeBlock{Height: 5})
	if !errors.Is(err, ErrWrongHeight) {
		t.Fatalf("err = %v, want ErrWrongHeight", err)
	}
}

func TestProcessProposalRejectsForgery(t *testing.T) {
	n := newTestNode(t)
	mallory, _ := crypto.GenerateKey()
	sm, err := NewSignedMessage(n.eip712, mallory, n.nativeOrder(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	sm.From = n.alice.Address()
	raw, _ := sm.Serialize()

	resp := n.app.ProcessProposal(abci.RequestProcessProposal{Height: 1, Txs: [][]byte{n.sign(n.nativeOrder(1)), raw}})
	if resp.Accept || !strings.HasPrefix(resp.Reason, "tx 1") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRestartResumesFromHead(t *testing.T) {
	n := newTestNode(t)
	if err := n.app.CheckTx(n.sign(n.nativeOrder(1))); err != nil {
		t.Fatal(err)
	}
	b, _, err := n.app.ProduceBlock()
	if err != nil {
		t.Fatal(err)
	}
	balance := n.app.Chain().Balance(n.alice.Address())

	n.restart()
	if h, hash := n.app.Head(); h != 1 || hash != b.Hash() {
		t.Fatalf("head after restart = %d %s", h, hash.Hex())
	}
	if got := n.app.Chain().Balance(n.alice.Address()); !got.Eq(balance) {
		t.Errorf("genesis credited again: %s, want %s", got.Dec(), balance.Dec())
	}
	if len(n.vaultOrders()) != 1 {
		t.Error("order lost across restart")
	}
	if err := n.app.CheckTx(n.sign(n.nativeOrder(2))); err != nil {
		t.Fatal(err)
	}
	if b2, _, err := n.app.ProduceBlock(); err != nil || b2.Height != 2 {
		t.Fatalf("block after restart = %d, %v", b2.Height, err)
	}
}

func TestParseAllocations(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		wantErr bool
	}{
		{"ok", []string{"0x00000000000000000000000000000000000000aa=5"}, false},
		{"missing amount", []string{"0x00000000000000000000000000000000000000aa"}, true},
		{"bad address", []string{"alice=5"}, true},
		{"bad amount", []string{"0x00000000000000000000000000000000000000aa=-1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAllocations(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && got[0].Amount.Uint64() != 5 {
				t.Errorf("amount = %s", got[0].Amount.Dec())
			}
		})
	}
}
