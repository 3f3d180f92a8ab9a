package jetton

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Minter issues one token. Only the admin may mint.
type Minter struct {
	Admin       common.Address `json:"admin"`
	Symbol      string         `json:"symbol"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
}

var _ chain.Contract = (*Minter)(nil)

func newMinter(data []byte) (chain.Contract, error) {
	var d minterData
	if err := rlp.DecodeBytes(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode minter data: %w", err)
	}
	return &Minter{Admin: d.Admin, Symbol: d.Symbol, TotalSupply: new(uint256.Int)}, nil
}

func (m *Minter) MarshalState() ([]byte, error) { return json.Marshal(m) }

func (m *Minter) UnmarshalState(data []byte) error {
	var s Minter
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.TotalSupply == nil {
		s.TotalSupply = new(uint256.Int)
	}
	*m = s
	return nil
}

func (m *Minter) Receive(ctx *chain.Context, msg chain.Message) error {
	if msg.Bounced {
		// a failed mint never credited anyone
		if orig, ok := wire.Unbounce(msg.Body); ok {
			if h, raw, err := wire.Decode(orig); err == nil && h.Op == OpInternalTransfer {
				var it InternalTransfer
				if wire.DecodePayload(raw, &it) == nil {
					m.TotalSupply = chain.SatSub(m.TotalSupply, it.Amount)
				}
			}
		}
		return nil
	}
	if len(msg.Body) == 0 {
		return nil
	}
	h, raw, err := wire.Decode(msg.Body)
	if err != nil {
		return err
	}
	if h.Op != OpMint {
		return fmt.Errorf("%w: %s", ErrUnknownOp, h.Op)
	}
	if ctx.Sender() != m.Admin {
		return ErrNotOwner
	}
	var req Mint
	if err := wire.DecodePayload(raw, &req); err != nil {
		return err
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return ErrZeroAmount
	}
	if ctx.Value().Lt(ctx.GasFee()) {
		return fmt.Errorf("%w: mint needs %s for the wallet hop", ErrInsufficientValue, ctx.GasFee().Dec())
	}

	m.TotalSupply.Add(m.TotalSupply, req.Amount)

	init := WalletInit(ctx.Self(), req.To)
	body, err := wire.Encode(OpInternalTransfer, h.QueryID, InternalTransfer{
		Amount:          req.Amount,
		From:            ctx.Self(),
		ResponseAddress: req.ResponseAddress,
		ForwardAmount:   new(uint256.Int),
	})
	if err != nil {
		return err
	}
	ctx.Send(chain.Message{To: init.Address(), Value: ctx.Value(), Bounce: true, Init: &init, Body: body})
	ctx.Logger().Info("jetton_minted", zap.String("symbol", m.Symbol), zap.String("to", req.To.Hex()), zap.String("amount", req.Amount.Dec()))
	return nil
}

// WalletAddress is the minter's getWalletAddress getter.
func (m *Minter) WalletAddress(self, owner common.Address) common.Address {
	return WalletAddress(self, owner)
}
