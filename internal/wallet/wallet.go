// Package wallet holds the signing key used for swap transactions.
package wallet

import (
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// ErrInvalidKey is returned for keys that do not decode to an ed25519 keypair.
var ErrInvalidKey = errors.New("invalid private key")

// Wallet signs transaction messages. Safe for concurrent use; the key is never mutated.
type Wallet struct {
	key solanago.PrivateKey
	pub solanago.PublicKey
}

// FromBase58 loads a wallet from a base58 encoded 64-byte secret key.
func FromBase58(secret string) (*Wallet, error) {
	key, err := solanago.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return fromKey(key)
}

// FromKey wraps an existing private key.
func FromKey(key solanago.PrivateKey) (*Wallet, error) {
	return fromKey(key)
}

func fromKey(key solanago.PrivateKey) (*Wallet, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidKey, len(key))
	}
	pub := key.PublicKey()
	if !solana.IsOnCurve(pub.String()) {
		return nil, fmt.Errorf("%w: public key is off curve", ErrInvalidKey)
	}
	return &Wallet{key: key, pub: pub}, nil
}

// PublicKey returns the wallet address.
func (w *Wallet) PublicKey() solanago.PublicKey {
	return w.pub
}

// Address returns the base58 wallet address.
func (w *Wallet) Address() string {
	return w.pub.String()
}

// Sign signs a serialized transaction message.
func (w *Wallet) Sign(message []byte) (solanago.Signature, error) {
	return w.key.Sign(message)
}
