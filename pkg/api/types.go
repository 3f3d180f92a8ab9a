package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/swap"
)

// API response types for REST endpoints and WebSocket messages. Amounts
// are decimal strings in nano units.

// ==============================
// REST Response Types
// ==============================

// ChainStatus is the node's current head
type ChainStatus struct {
	Height      uint64      `json:"height"`
	Hash        common.Hash `json:"hash"`
	StateHash   common.Hash `json:"stateHash"`
	MempoolSize int         `json:"mempoolSize"`
	Fees        string      `json:"fees"`
	Supply      string      `json:"supply"`
}

// MasterInfo describes the MasterOrder and the tokens deployed at genesis
type MasterInfo struct {
	Address             common.Address            `json:"address"`
	Admin               common.Address            `json:"admin"`
	Jettons             map[string]common.Address `json:"jettons"`
	GasFee              string                    `json:"gasFee"`
	JettonTransferValue string                    `json:"jettonTransferValue"`
	NativeCommission    string                    `json:"nativeCommission"`
}

// VaultInfo is one creator's UserOrder
type VaultInfo struct {
	Owner        common.Address `json:"owner"`
	Address      common.Address `json:"address"`
	Deployed     bool           `json:"deployed"`
	Balance      string         `json:"balance"`
	NativeEscrow string         `json:"nativeEscrow"`
	Orders       []swap.Order   `json:"orders"`
}

// AccountInfo is the runtime view of any account
type AccountInfo struct {
	Address common.Address `json:"address"`
	Exists  bool           `json:"exists"`
	Balance string         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	Code    chain.CodeID   `json:"code,omitempty"`
}

// JettonWalletInfo is one owner's balance of one token
type JettonWalletInfo struct {
	Root    common.Address `json:"root"`
	Owner   common.Address `json:"owner"`
	Wallet  common.Address `json:"wallet"`
	Balance string         `json:"balance"`
}

// BlockInfo is a committed block with its hash
type BlockInfo struct {
	Hash common.Hash `json:"hash"`
	storage.Block
}

// SubmitMessageResponse is the response from message submission
type SubmitMessageResponse struct {
	Status  string      `json:"status"` // "accepted"
	Hash    common.Hash `json:"hash"`   // keccak of the submitted bytes
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["blocks", "account:0x..."]
}

// BlockUpdate is broadcast on the "blocks" channel after every commit
type BlockUpdate struct {
	Type      string      `json:"type"` // "block"
	Height    uint64      `json:"height"`
	Hash      common.Hash `json:"hash"`
	StateHash common.Hash `json:"stateHash"`
	Time      uint64      `json:"time"`
	Messages  int         `json:"messages"`
	Txs       int         `json:"txs"`
}

// TxUpdate is broadcast on "account:<address>" for every transaction
// sent to or from the address
type TxUpdate struct {
	Type   string            `json:"type"` // "tx"
	Height uint64            `json:"height"`
	Tx     chain.Transaction `json:"tx"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
