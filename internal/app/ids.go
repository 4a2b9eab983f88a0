package app

import (
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/cimillas/partmarket/internal/domain"
)

func newID() string {
	return uuid.NewString()
}

func parseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", domain.ErrInvalidID
	}
	return u.String(), nil
}

// PartID derives the content id of the seq-th part of an item: the first
// 16 bytes of keccak256("<itemID>/<seq>") as hex.
func PartID(itemID string, seq int) string {
	sum := crypto.Keccak256([]byte(itemID + "/" + strconv.Itoa(seq)))
	return hex.EncodeToString(sum[:16])
}

func partIDsOf(parts []domain.Part) []string {
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.ID
	}
	return ids
}
