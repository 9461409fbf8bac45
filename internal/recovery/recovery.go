// Package recovery computes the Ethereum recovery id (v) for a threshold
// ECDSA signature whose scheme engine never produces one itself. It tries
// both candidate recovery bits and keeps whichever one ecrecovers to the
// expected public key.
package recovery

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoMatchingBit is returned when neither recovery bit ecrecovers to the
// expected public key — the signature does not match the key it claims to
// be over, a SchemeError in coordinator terms.
var ErrNoMatchingBit = errors.New("recovery: signature does not recover to expected public key")

// Compute tries recovery bit 0 then 1 against digest and r||s, returning the
// bit (and the full 65-byte r||s||v signature) whose ecrecover result
// matches expectedCompressedPubKey.
func Compute(digest []byte, r, s []byte, expectedCompressedPubKey []byte) (recoveryBit byte, full []byte, err error) {
	if len(r) != 32 || len(s) != 32 {
		return 0, nil, fmt.Errorf("recovery: r and s must be 32 bytes each, got %d/%d", len(r), len(s))
	}

	for bit := byte(0); bit <= 1; bit++ {
		candidate := make([]byte, 65)
		copy(candidate[0:32], r)
		copy(candidate[32:64], s)
		candidate[64] = bit

		uncompressed, err := crypto.Ecrecover(digest, candidate)
		if err != nil {
			continue
		}

		pub, err := crypto.UnmarshalPubkey(uncompressed)
		if err != nil {
			continue
		}

		compressed := crypto.CompressPubkey(pub)
		if bytesEqual(compressed, expectedCompressedPubKey) {
			return bit, candidate, nil
		}
	}

	return 0, nil, ErrNoMatchingBit
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
