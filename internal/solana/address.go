package solana

import (
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known addresses and units.
const (
	// NativeMint is the wrapped SOL mint used by the aggregator for the native side.
	NativeMint = "So11111111111111111111111111111111111111112"

	LamportsPerSOL = 1_000_000_000
	NativeDecimals = 9
)

// ErrInvalidAddress is returned when a string is not a base58 32-byte public key.
var ErrInvalidAddress = errors.New("invalid address")

// DecodeAddress decodes a base58 public key and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(raw) != 32 {
		return nil, ErrInvalidAddress
	}
	return raw, nil
}

// IsValidAddress reports whether addr decodes to a 32-byte public key.
func IsValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// IsOnCurve reports whether addr is a point on the ed25519 curve.
// Wallet (signer) addresses are always on curve; program derived addresses never are.
func IsOnCurve(addr string) bool {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// IsNative reports whether mint is the wrapped SOL mint.
func IsNative(mint string) bool {
	return mint == NativeMint
}
