package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type AssetKind uint8

const (
	AssetNative AssetKind = iota
	AssetToken
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token"
	default:
		return fmt.Sprintf("AssetKind(%d)", uint8(k))
	}
}

func (k AssetKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AssetKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "native":
		*k = AssetNative
	case "token":
		*k = AssetToken
	default:
		return fmt.Errorf("unknown asset kind %q", b)
	}
	return nil
}

// Asset says where one side of an order lives. A native asset is held in
// the vault's own balance; a token asset is held by the vault's wallet for
// that token. Root is the token minter and is zero when the creator did
// not name it.
type Asset struct {
	Kind   AssetKind      `json:"kind"`
	Root   common.Address `json:"root"`
	Wallet common.Address `json:"wallet"`
}

func Native() Asset { return Asset{Kind: AssetNative} }

func Token(root, wallet common.Address) Asset {
	return Asset{Kind: AssetToken, Root: root, Wallet: wallet}
}

func (a Asset) IsNative() bool { return a.Kind == AssetNative }

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("token(root=%s wallet=%s)", a.Root.Hex(), a.Wallet.Hex())
}
