package node

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// InitPayload is a StateInit attached to an external message.
type InitPayload struct {
	Code string        `json:"code"`
	Data hexutil.Bytes `json:"data"`
}

// SignedMessage is an external message as submitted to the node: the
// message fields a wallet signed under EIP-712 plus the signature.
type SignedMessage struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     string         `json:"value"` // nano, decimal
	Bounce    bool           `json:"bounce"`
	Body      hexutil.Bytes  `json:"body"`
	Init      *InitPayload   `json:"init,omitempty"`
	Nonce     uint64         `json:"nonce"`
	Signature string         `json:"signature"` // hex, 65 bytes
}

// ParseSignedMessage decodes the JSON form of a signed message.
func ParseSignedMessage(data []byte) (*SignedMessage, error) {
	var m SignedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &m, nil
}

func (m *SignedMessage) Serialize() ([]byte, error) { return json.Marshal(m) }

func (m *SignedMessage) value() (*uint256.Int, error) {
	if m.Value == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(m.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", m.Value, err)
	}
	return v, nil
}

// ToEIP712 returns the typed-data view the sender signed.
func (m *SignedMessage) ToEIP712() (*crypto.MessageEIP712, error) {
	v, err := m.value()
	if err != nil {
		return nil, err
	}
	out := &crypto.MessageEIP712{
		From:   m.From,
		To:     m.To,
		Value:  v.ToBig(),
		Bounce: m.Bounce,
		Body:   m.Body,
		Nonce:  m.Nonce,
	}
	if m.Init != nil {
		out.InitCode = m.Init.Code
		out.InitData = m.Init.Data
	}
	return out, nil
}

// ToChainMessage converts m to the runtime's message. From is set by the
// runtime on submission.
func (m *SignedMessage) ToChainMessage() (chain.Message, error) {
	v, err := m.value()
	if err != nil {
		return chain.Message{}, err
	}
	msg := chain.Message{To: m.To, Value: v, Bounce: m.Bounce, Body: m.Body}
	if m.Init != nil {
		msg.Init = &chain.StateInit{Code: chain.CodeID(m.Init.Code), Data: m.Init.Data}
	}
	return msg, nil
}

// NewSignedMessage builds and signs a message from signer.
func NewSignedMessage(e *crypto.EIP712Signer, signer *crypto.Signer, msg chain.Message, nonce uint64) (*SignedMessage, error) {
	value := msg.Value
	if value == nil {
		value = new(uint256.Int)
	}
	sm := &SignedMessage{
		From:   signer.Address(),
		To:     msg.To,
		Value:  value.Dec(),
		Bounce: msg.Bounce,
		Body:   msg.Body,
		Nonce:  nonce,
	}
	if msg.Init != nil {
		sm.Init = &InitPayload{Code: string(msg.Init.Code), Data: msg.Init.Data}
	}
	typed, err := sm.ToEIP712()
	if err != nil {
		return nil, err
	}
	sig, err := e.SignMessage(signer, typed)
	if err != nil {
		return nil, err
	}
	sm.Signature = hexutil.Encode(sig)
	return sm, nil
}
