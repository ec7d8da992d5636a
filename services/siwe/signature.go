package siwe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrSignatureInvalid = errors.New("signature does not match address")

const signatureLength = 65

// normalizeSignature brings an R||S||V signature into the form the EIP-191
// check expects: 0x prefixed with V in {27, 28}. Wallets differ on both.
func normalizeSignature(signature string) (string, error) {
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != signatureLength {
		return "", fmt.Errorf("%w: signature must be %d hex encoded bytes", ErrSignatureInvalid, signatureLength)
	}

	switch sig[64] {
	case 0, 1:
		sig[64] += 27
	case 27, 28:
	default:
		return "", fmt.Errorf("%w: invalid recovery id", ErrSignatureInvalid)
	}
	return hexutil.Encode(sig), nil
}
