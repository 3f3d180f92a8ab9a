package storage

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
)

var (
	admin = common.HexToAddress("0xad")
	alice = common.HexToAddress("0xa11ce")
)

func openStore(t *testing.T, dir string) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return s
}

// TestChainSurvivesRestart commits a chain with live contracts, reopens
// the database and checks the restored runtime is indistinguishable.
func TestChainSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	c := chain.New(chain.DefaultParams(), chain.WithStore(s))
	jetton.Register(c)
	c.Credit(admin, chain.Coins(10))
	minter, err := c.Deploy(jetton.MinterInit(admin, "TST"))
	if err != nil {
		t.Fatal(err)
	}
	body := jetton.MintBody(1, jetton.Mint{To: alice, Amount: uint256.NewInt(42), ResponseAddress: admin})
	if _, err := c.Execute(context.Background(), admin, chain.Message{To: minter, Value: chain.Coins(1), Bounce: true, Body: body}); err != nil {
		t.Fatal(err)
	}
	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	want := c.StateHash()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = openStore(t, dir)
	defer s.Close()
	restored := chain.New(chain.DefaultParams(), chain.WithStore(s))
	jetton.Register(restored)
	n, err := restored.Load()
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("no accounts loaded")
	}
	if got := restored.StateHash(); got != want {
		t.Fatalf("state hash %s, want %s", got.Hex(), want.Hex())
	}
	if restored.Nonce(admin) != 1 {
		t.Errorf("admin nonce = %d, want 1", restored.Nonce(admin))
	}
	var bal *uint256.Int
	err = restored.View(jetton.WalletAddress(minter, alice), func(ct chain.Contract) error {
		bal = ct.(*jetton.Wallet).Balance
		return nil
	})
	if err != nil || bal.Uint64() != 42 {
		t.Fatalf("alice wallet = %v, err %v", bal, err)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()
	recs, meta, err := s.LoadAccounts()
	if err != nil || len(recs) != 0 || meta.Supply != nil {
		t.Fatalf("recs=%v meta=%+v err=%v", recs, meta, err)
	}
}

func TestBlockStores(t *testing.T) {
	pebbleStore := openStore(t, t.TempDir())
	defer pebbleStore.Close()

	stores := map[string]BlockStore{
		"pebble": pebbleStore,
		"memory": NewInMemoryBlockStore(),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if _, ok := s.Head(); ok {
				t.Fatal("empty store has a head")
			}
			var parent common.Hash
			for h := uint64(1); h <= 3; h++ {
				b := Block{
					Height:   h,
					Parent:   parent,
					Time:     1000 * h,
					Messages: [][]byte{[]byte(`{"n":1}`)},
					Txs: []chain.Transaction{{
						LT:      h,
						From:    admin,
						To:      alice,
						Value:   uint256.NewInt(h),
						Success: true,
					}},
				}
				if err := s.SaveBlock(b); err != nil {
					t.Fatal(err)
				}
				parent = b.Hash()
			}

			head, ok := s.Head()
			if !ok || head != 3 {
				t.Fatalf("head = %d, %v", head, ok)
			}
			b, ok := s.GetBlock(2)
			if !ok || b.Height != 2 || len(b.Txs) != 1 || b.Txs[0].Value.Uint64() != 2 {
				t.Fatalf("block 2 = %+v", b)
			}
			byHash, ok := s.GetBlockByHash(b.Hash())
			if !ok || byHash.Height != 2 {
				t.Fatalf("by hash = %+v, %v", byHash, ok)
			}
			last, _ := s.GetBlock(3)
			if last.Parent != b.Hash() {
				t.Error("parent link broken")
			}
			if _, ok := s.GetBlock(9); ok {
				t.Error("found missing block")
			}
		})
	}
}

func TestBlockHashCoversMessages(t *testing.T) {
	a := Block{Height: 1, Messages: [][]byte{[]byte("x")}}
	b := Block{Height: 1, Messages: [][]byte{[]byte("y")}}
	if a.Hash() == b.Hash() {
		t.Fatal("different messages, same hash")
	}
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewFileWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Append("block 1")
	w.Append("block 2")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 || lines[1] != "block 2" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestKeyUpperBound(t *testing.T) {
	got := keyUpperBound([]byte("acc:"))
	if string(got) != "acc;" {
		t.Fatalf("upper bound = %q", got)
	}
}
