package node

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/swap"
)

// Genesis lists the singletons installed when the chain was built.
type Genesis struct {
	Master  common.Address            `json:"master"`
	Admin   common.Address            `json:"admin"`
	Jettons map[string]common.Address `json:"jettons"` // symbol -> minter
}

// Allocation is one genesis native balance.
type Allocation struct {
	Address common.Address
	Amount  *uint256.Int
}

// ParseAllocations parses "0xaddr=amount" entries, amounts in nano.
func ParseAllocations(entries []string) ([]Allocation, error) {
	out := make([]Allocation, 0, len(entries))
	for _, e := range entries {
		addr, amount, ok := strings.Cut(e, "=")
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid genesis entry %q", e)
		}
		v, err := uint256.FromDecimal(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("invalid genesis amount %q: %w", e, err)
		}
		out = append(out, Allocation{Address: common.HexToAddress(addr), Amount: v})
	}
	return out, nil
}

// SwapParams converts the configured swap values.
func SwapParams(cfg params.Config) swap.Params {
	return swap.Params{
		JettonTransferValue: uint256.NewInt(cfg.Swap.JettonTransferValue),
		NativeCommission:    uint256.NewInt(cfg.Swap.NativeCommission),
	}
}

// Domain returns the EIP-712 domain external messages are signed under.
func Domain(cfg params.Config) crypto.EIP712Domain {
	return crypto.EIP712Domain{
		Name:    cfg.Domain.Name,
		Version: cfg.Domain.Version,
		ChainID: big.NewInt(cfg.Domain.ChainID),
	}
}

// NewChain builds the runtime, restores it from store and installs the
// genesis singletons. Balances are only credited on an empty store;
// deploying an existing singleton is a no-op, so restarts are idempotent.
func NewChain(cfg params.Config, store chain.AccountStore, log *zap.Logger) (*chain.Chain, Genesis, error) {
	c := chain.New(chain.Params{
		GasFee:   uint256.NewInt(cfg.Chain.GasFee),
		MaxSteps: cfg.Chain.MaxSteps,
	}, chain.WithStore(store), chain.WithLogger(log))
	jetton.Register(c)
	if err := swap.Register(c, SwapParams(cfg)); err != nil {
		return nil, Genesis{}, err
	}

	loaded, err := c.Load()
	if err != nil {
		return nil, Genesis{}, err
	}

	if !common.IsHexAddress(cfg.Node.MasterAdmin) {
		return nil, Genesis{}, fmt.Errorf("invalid master admin %q", cfg.Node.MasterAdmin)
	}
	g := Genesis{Admin: common.HexToAddress(cfg.Node.MasterAdmin), Jettons: make(map[string]common.Address)}
	if g.Master, err = c.Deploy(swap.MasterInit(g.Admin)); err != nil {
		return nil, Genesis{}, fmt.Errorf("deploy master: %w", err)
	}
	for _, sym := range cfg.Node.DemoJettons {
		minter, err := c.Deploy(jetton.MinterInit(g.Admin, sym))
		if err != nil {
			return nil, Genesis{}, fmt.Errorf("deploy %s minter: %w", sym, err)
		}
		g.Jettons[sym] = minter
	}

	if loaded == 0 {
		allocs, err := ParseAllocations(cfg.Node.Genesis)
		if err != nil {
			return nil, Genesis{}, err
		}
		for _, a := range allocs {
			c.Credit(a.Address, a.Amount)
		}
		log.Info("genesis_applied", zap.Int("allocations", len(allocs)), zap.String("master", g.Master.Hex()))
	}
	if err := c.Commit(); err != nil {
		return nil, Genesis{}, err
	}
	return c, g, nil
}
