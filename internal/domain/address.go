package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress lowercases and trims an account address. Stored owners
// and ledger signers are always in this form.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ParseAddress normalizes addr and rejects anything that is not a 20-byte
// hex account address.
func ParseAddress(addr string) (string, error) {
	addr = NormalizeAddress(addr)
	if !common.IsHexAddress(addr) || !strings.HasPrefix(addr, "0x") {
		return "", ErrInvalidAddress
	}
	return addr, nil
}
