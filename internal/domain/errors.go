package domain

import "errors"

// Kind groups errors by how a caller is expected to react.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindExpiry        Kind = "expiry"
	KindAuthorization Kind = "authorization"
	KindFatal         Kind = "fatal"
	KindInternal      Kind = "internal"
)

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidPartCount = errors.New("invalid part count")
	ErrInvalidContent   = errors.New("invalid content hash")
	ErrEmptyPartSet     = errors.New("listing requires at least one part")
	ErrDuplicatePart    = errors.New("duplicate part id")
	ErrInvalidRange     = errors.New("invalid range")

	ErrItemNotFound        = errors.New("item not found")
	ErrPartNotFound        = errors.New("part not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrGiftNotFound        = errors.New("gift not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrOwnershipMismatch          = errors.New("ownership mismatch")
	ErrAlreadyListed              = errors.New("already listed")
	ErrPartNotOwned               = errors.New("part not owned by seller")
	ErrPartAlreadyListed          = errors.New("part already listed")
	ErrPartPinned                 = errors.New("part pinned to a pending gift or reservation")
	ErrPartItemMismatch           = errors.New("part does not belong to item")
	ErrInsufficientAvailability   = errors.New("insufficient availability")
	ErrInsufficientUnlistedParts  = errors.New("insufficient unlisted parts")
	ErrBundleRequiresFullQuantity = errors.New("bundle listing requires full quantity")
	ErrBuyerMismatch              = errors.New("buyer mismatch")
	ErrListingNotActive           = errors.New("listing not active")
	ErrReservationNotPending      = errors.New("reservation not pending")
	ErrGiftNotPending             = errors.New("gift not pending")
	ErrVersionConflict            = errors.New("version conflict")
	ErrContention                 = errors.New("too many concurrent updates, retry later")

	ErrReservationExpired = errors.New("reservation expired")
	ErrGiftExpired        = errors.New("gift expired")

	ErrNotSeller        = errors.New("caller is not the seller")
	ErrNotCreator       = errors.New("caller is not the item creator")
	ErrReceiverMismatch = errors.New("caller is not the gift receiver")
	ErrSelfGift         = errors.New("cannot gift to self")
	ErrSelfPurchase     = errors.New("cannot buy own listing")
	ErrInvalidSignature = errors.New("invalid signature")

	ErrHashDivergence = errors.New("canonical hash divergence")
	ErrLedgerHalted   = errors.New("ledger halted")
)

var kinds = map[error]Kind{
	ErrInvalidID:        KindValidation,
	ErrInvalidAddress:   KindValidation,
	ErrInvalidQuantity:  KindValidation,
	ErrInvalidPrice:     KindValidation,
	ErrInvalidName:      KindValidation,
	ErrInvalidPartCount: KindValidation,
	ErrInvalidContent:   KindValidation,
	ErrEmptyPartSet:     KindValidation,
	ErrDuplicatePart:    KindValidation,
	ErrInvalidRange:     KindValidation,

	ErrItemNotFound:        KindNotFound,
	ErrPartNotFound:        KindNotFound,
	ErrListingNotFound:     KindNotFound,
	ErrReservationNotFound: KindNotFound,
	ErrGiftNotFound:        KindNotFound,
	ErrTransactionNotFound: KindNotFound,

	ErrOwnershipMismatch:          KindConflict,
	ErrAlreadyListed:              KindConflict,
	ErrPartNotOwned:               KindConflict,
	ErrPartAlreadyListed:          KindConflict,
	ErrPartPinned:                 KindConflict,
	ErrPartItemMismatch:           KindConflict,
	ErrInsufficientAvailability:   KindConflict,
	ErrInsufficientUnlistedParts:  KindConflict,
	ErrBundleRequiresFullQuantity: KindConflict,
	ErrBuyerMismatch:              KindConflict,
	ErrListingNotActive:           KindConflict,
	ErrReservationNotPending:      KindConflict,
	ErrGiftNotPending:             KindConflict,
	ErrVersionConflict:            KindConflict,
	ErrContention:                 KindConflict,

	ErrReservationExpired: KindExpiry,
	ErrGiftExpired:        KindExpiry,

	ErrNotSeller:        KindAuthorization,
	ErrNotCreator:       KindAuthorization,
	ErrReceiverMismatch: KindAuthorization,
	ErrSelfGift:         KindAuthorization,
	ErrSelfPurchase:     KindAuthorization,
	ErrInvalidSignature: KindAuthorization,

	ErrHashDivergence: KindFatal,
	ErrLedgerHalted:   KindFatal,
}

// KindOf classifies err by the first known sentinel in its chain.
// Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Sentinel returns the known sentinel wrapped by err, or nil.
func Sentinel(err error) error {
	for sentinel := range kinds {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
