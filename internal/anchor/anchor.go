// Package anchor publishes ledger hashes to external write-once stores and
// records the receipts they return. Anchoring runs outside every request
// path: a failure is logged and retried, never surfaced to a caller.
package anchor

import (
	"context"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// Anchorer writes one hash to an external store and returns its receipt.
// Anchoring the same hash twice must be harmless.
type Anchorer interface {
	Anchor(ctx context.Context, env Envelope) (string, error)
	Name() string
}

// Envelope is what gets anchored for a ledger record.
type Envelope struct {
	Hash              string `cbor:"hash"`
	TransactionNumber int64  `cbor:"transaction_number"`
}

var ErrEmptyHash = errors.New("anchor: empty hash")

// encMode uses Core Deterministic Encoding so an envelope always encodes to
// the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("anchor: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode returns the deterministic CBOR bytes of env.
func (env Envelope) Encode() ([]byte, error) {
	if env.Hash == "" {
		return nil, ErrEmptyHash
	}
	return encMode.Marshal(env)
}

// DecodeEnvelope parses bytes written by Encode.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := cbor.Unmarshal(b, &env)
	return env, err
}
