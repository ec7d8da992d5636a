package testutils

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

// Well-known development keys, so recovered addresses can be asserted literally.
const (
	WalletKeyA     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	WalletAddressA = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	WalletKeyB     = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	WalletAddressB = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// Wallet signs messages the way a browser wallet does for personal_sign.
type Wallet struct {
	key *secp256k1.PrivateKey
}

func NewWallet(t *testing.T, hexKey string) *Wallet {
	t.Helper()

	raw, err := hex.DecodeString(hexKey)
	require.NoError(t, err)
	require.Len(t, raw, 32)

	return &Wallet{key: secp256k1.PrivKeyFromBytes(raw)}
}

func RandomWallet(t *testing.T) *Wallet {
	t.Helper()

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	return &Wallet{key: key}
}

// Address is the lowercase 0x-prefixed address of the wallet.
func (w *Wallet) Address() string {
	pub := w.key.PubKey().SerializeUncompressed()
	return "0x" + hex.EncodeToString(keccak(pub[1:])[12:])
}

// Sign returns a 0x-prefixed 65 byte R||S||V signature with V in {27, 28}.
func (w *Wallet) Sign(message string) string {
	compact := ecdsa.SignCompact(w.key, personalHash(message), false)

	sig := make([]byte, 65)
	copy(sig[0:64], compact[1:65])
	sig[64] = compact[0]

	return "0x" + hex.EncodeToString(sig)
}

func personalHash(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return keccak([]byte(prefix), []byte(message))
}

func keccak(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
