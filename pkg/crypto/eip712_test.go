package crypto

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testMessage(from common.Address) *MessageEIP712 {
	return &MessageEIP712{
		From:   from,
		To:     common.HexToAddress("0x1234"),
		Value:  big.NewInt(1_500_000_000),
		Bounce: true,
		Body:   []byte{0x2d, 0x9a, 0x7e, 0x1f, 0, 0, 0, 0, 0, 0, 0, 1},
		Nonce:  3,
	}
}

func TestSignAndVerifyMessage(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	msg := testMessage(signer.Address())

	signature, err := e.SignMessage(signer, msg)
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	ok, err := e.VerifyMessageSignature(msg, signature)
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v", ok, err)
	}
}

func TestMessageTampering(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	signature, _ := e.SignMessage(signer, testMessage(signer.Address()))

	tests := []struct {
		name   string
		mutate func(m *MessageEIP712)
	}{
		{"value", func(m *MessageEIP712) { m.Value = big.NewInt(1) }},
		{"target", func(m *MessageEIP712) { m.To = common.HexToAddress("0x9999") }},
		{"body", func(m *MessageEIP712) { m.Body = append(m.Body, 0) }},
		{"bounce", func(m *MessageEIP712) { m.Bounce = false }},
		{"nonce", func(m *MessageEIP712) { m.Nonce++ }},
		{"claimed sender", func(m *MessageEIP712) { m.From = common.HexToAddress("0x1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testMessage(signer.Address())
			tt.mutate(msg)
			ok, err := e.VerifyMessageSignature(msg, signature)
			if err == nil && ok {
				t.Fatal("tampered message verified")
			}
		})
	}
}

func TestDomainSeparatesChains(t *testing.T) {
	signer, _ := GenerateKey()
	msg := testMessage(signer.Address())
	local := NewEIP712Signer(DefaultDomain())

	other := DefaultDomain()
	other.ChainID = big.NewInt(1)
	h1, _ := local.HashMessage(msg)
	h2, _ := NewEIP712Signer(other).HashMessage(msg)
	if string(h1) == string(h2) {
		t.Fatal("same digest on different chains")
	}

	withMaster := DefaultDomain()
	withMaster.VerifyingContract = common.HexToAddress("0xabcd")
	h3, _ := NewEIP712Signer(withMaster).HashMessage(msg)
	if string(h1) == string(h3) {
		t.Fatal("same digest for different masters")
	}
}

func TestMessageToJSON(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	out, err := e.MessageToJSON(testMessage(common.HexToAddress("0xa11ce")))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["primaryType"] != "Message" {
		t.Errorf("primaryType = %v", parsed["primaryType"])
	}
	msg, _ := parsed["message"].(map[string]any)
	if msg["value"] != "1500000000" || msg["bounce"] != true {
		t.Errorf("message = %v", msg)
	}
}
