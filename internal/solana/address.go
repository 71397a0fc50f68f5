package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/carter293/hasItPumped/internal/domain"
)

// Public key size and its base58 length bounds.
const (
	PublicKeyLength  = 32
	MinAddressLength = 32
	MaxAddressLength = 44
)

// WrappedSOLMint is the default quote currency for price lookups.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateMint checks that addr is a well-formed Solana public key:
// 32..44 base58 characters decoding to exactly 32 bytes.
// When requireOnCurve is set the key must also be a valid ed25519 point,
// which rejects program-derived addresses.
func ValidateMint(addr string, requireOnCurve bool) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", domain.ErrInvalidIdentifier)
	}
	if len(addr) < MinAddressLength || len(addr) > MaxAddressLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]", domain.ErrInvalidIdentifier, len(addr), MinAddressLength, MaxAddressLength)
	}
	for i, r := range addr {
		if !isBase58Rune(r) {
			return fmt.Errorf("%w: character %q at %d is not base58", domain.ErrInvalidIdentifier, r, i)
		}
	}

	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}
	if len(raw) != PublicKeyLength {
		return fmt.Errorf("%w: decodes to %d bytes, want %d", domain.ErrInvalidIdentifier, len(raw), PublicKeyLength)
	}

	if requireOnCurve && !IsOnCurve(raw) {
		return fmt.Errorf("%w: address is not on the ed25519 curve", domain.ErrInvalidIdentifier)
	}
	return nil
}

// IsOnCurve reports whether the 32-byte key is a valid ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func isBase58Rune(r rune) bool {
	for _, c := range base58Alphabet {
		if c == r {
			return true
		}
	}
	return false
}
