// Package signer signs and verifies request payloads with secp256k1 keys
// using EIP-191 personal messages, so any Ethereum wallet can produce a
// signature the ledger accepts.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces signatures over arbitrary payloads.
type Signer interface {
	Address() string
	Sign(payload []byte) (string, error)
}

// Verifier checks that signature over payload was made by address.
type Verifier interface {
	Verify(address string, payload []byte, signature string) bool
}

// Wallet is a key-backed Signer.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewWallet generates a fresh secp256k1 key.
func NewWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newWallet(key), nil
}

// WalletFromHex loads a wallet from a hex private key, with or without 0x.
func WalletFromHex(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newWallet(key), nil
}

func newWallet(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		key:     key,
		address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

// Address returns the lowercase 0x address of the wallet.
func (w *Wallet) Address() string {
	return w.address
}

// PrivateKeyHex returns the key as 0x hex, loadable by WalletFromHex.
func (w *Wallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.key))
}

// Sign returns a 65-byte [R || S || V] signature, V in {27, 28}, as 0x hex.
func (w *Wallet) Sign(payload []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(payload), w.key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// EIP191 verifies personal-message signatures by public key recovery.
type EIP191 struct{}

func (EIP191) Verify(address string, payload []byte, signature string) bool {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}
	pub, err := crypto.SigToPub(accounts.TextHash(payload), sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), strings.TrimSpace(address))
}
