// Package eth holds the secp256k1 signature helpers used by the
// chain-address credential family.
package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the expected byte length of an r||s||v signature.
const SignatureLength = 65

// PersonalSignHash returns the EIP-191 digest clients sign over, i.e.
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalSignHash(msg []byte) common.Hash {
	prefixed := fmt.Appendf(nil, "\x19Ethereum Signed Message:\n%d", len(msg))
	prefixed = append(prefixed, msg...)
	return crypto.Keccak256Hash(prefixed)
}

// RecoverAddress recovers the signing address from a 65-byte signature over
// digest. Wallets emit v as 27/28; go-ethereum expects 0/1.
func RecoverAddress(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign checks that sig over the EIP-191 digest of msg was
// produced by the key owning want.
func VerifyPersonalSign(msg, sig []byte, want common.Address) (bool, error) {
	recovered, err := RecoverAddress(PersonalSignHash(msg), sig)
	if err != nil {
		return false, err
	}
	return recovered == want, nil
}
