package app

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cimillas/partmarket/internal/domain"
	"github.com/cimillas/partmarket/internal/signer"
)

// checkSignature runs before any store access; a bad signature never
// reaches the critical section.
func checkSignature(v signer.Verifier, address string, payload []byte, signature string) error {
	if signature == "" || !v.Verify(address, payload, signature) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// parsePrice accepts a positive decimal and returns it exactly as written.
func parsePrice(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return "", domain.ErrInvalidPrice
	}
	return raw, nil
}

// parseAmount accepts a non-negative decimal. Zero is a real amount and is
// kept distinct from an absent one.
func parseAmount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return "", domain.ErrInvalidPrice
	}
	return raw, nil
}

// totalAmount is unitPrice * quantity as a decimal string.
func totalAmount(unitPrice string, quantity int) (string, error) {
	d, err := decimal.NewFromString(unitPrice)
	if err != nil {
		return "", domain.ErrInvalidPrice
	}
	return d.Mul(decimal.NewFromInt(int64(quantity))).String(), nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
