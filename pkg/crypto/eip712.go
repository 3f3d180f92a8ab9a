package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "HyperSwap")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local)
	VerifyingContract common.Address // MasterOrder address, or zero
}

// MessageEIP712 is an external message as the sender signs it in a
// wallet. Body is the full encoded message body; InitCode and InitData are
// empty unless the message deploys its target.
type MessageEIP712 struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Bounce   bool
	Body     []byte
	InitCode string
	InitData []byte
	Nonce    uint64
}

// EIP712Signer hashes and signs external messages under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the default EIP-712 domain for HyperSwap
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "HyperSwap",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

var messageTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Message": []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "bounce", Type: "bool"},
		{Name: "body", Type: "bytes"},
		{Name: "initCode", Type: "string"},
		{Name: "initData", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
	},
}

func (e *EIP712Signer) typedData(m *MessageEIP712) apitypes.TypedData {
	value := m.Value
	if value == nil {
		value = new(big.Int)
	}
	return apitypes.TypedData{
		Types:       messageTypes,
		PrimaryType: "Message",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":     m.From.Hex(),
			"to":       m.To.Hex(),
			"value":    value.String(),
			"bounce":   m.Bounce,
			"body":     hexutil.Encode(m.Body),
			"initCode": m.InitCode,
			"initData": hexutil.Encode(m.InitData),
			"nonce":    fmt.Sprintf("%d", m.Nonce),
		},
	}
}

// HashMessage returns the EIP-712 digest the sender signs.
func (e *EIP712Signer) HashMessage(m *MessageEIP712) ([]byte, error) {
	typedData := e.typedData(m)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// SignMessage signs m with signer's key. m.From should be the signer's
// address or verification will fail.
func (e *EIP712Signer) SignMessage(signer *Signer, m *MessageEIP712) ([]byte, error) {
	hash, err := e.HashMessage(m)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signature, nil
}

// RecoverMessageSigner recovers the address that signed m.
func (e *EIP712Signer) RecoverMessageSigner(m *MessageEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashMessage(m)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash message: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyMessageSignature reports whether signature was made by m.From.
func (e *EIP712Signer) VerifyMessageSignature(m *MessageEIP712, signature []byte) (bool, error) {
	recovered, err := e.RecoverMessageSigner(m, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == m.From, nil
}

// MessageToJSON renders m as eth_signTypedData_v4 input so a browser
// wallet can sign it.
func (e *EIP712Signer) MessageToJSON(m *MessageEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(m), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
