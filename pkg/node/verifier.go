package node

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Verifier checks that a signed message was signed by its From address.
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify returns the authenticated sender of m.
func (v *Verifier) Verify(m *SignedMessage) (common.Address, error) {
	typed, err := m.ToEIP712()
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid message format: %w", err)
	}
	sigBytes, err := decodeSignature(m.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	valid, err := v.eip712Signer.VerifyMessageSignature(typed, sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if !valid {
		return common.Address{}, fmt.Errorf("signature invalid for %s", m.From.Hex())
	}
	return m.From, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	return sigBytes, nil
}
