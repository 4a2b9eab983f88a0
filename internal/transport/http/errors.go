package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/partmarket/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidQuery       = "invalid_query"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

// errorCodes gives every domain sentinel a stable machine-readable code.
var errorCodes = map[error]string{
	domain.ErrInvalidID:        "invalid_id",
	domain.ErrInvalidAddress:   "invalid_address",
	domain.ErrInvalidQuantity:  "invalid_quantity",
	domain.ErrInvalidPrice:     "invalid_price",
	domain.ErrInvalidName:      "invalid_name",
	domain.ErrInvalidPartCount: "invalid_part_count",
	domain.ErrInvalidContent:   "invalid_content_hash",
	domain.ErrEmptyPartSet:     "empty_part_set",
	domain.ErrDuplicatePart:    "duplicate_part",
	domain.ErrInvalidRange:     "invalid_range",

	domain.ErrItemNotFound:        "item_not_found",
	domain.ErrPartNotFound:        "part_not_found",
	domain.ErrListingNotFound:     "listing_not_found",
	domain.ErrReservationNotFound: "reservation_not_found",
	domain.ErrGiftNotFound:        "gift_not_found",
	domain.ErrTransactionNotFound: "transaction_not_found",

	domain.ErrOwnershipMismatch:          "ownership_mismatch",
	domain.ErrAlreadyListed:              "already_listed",
	domain.ErrPartNotOwned:               "part_not_owned",
	domain.ErrPartAlreadyListed:          "part_already_listed",
	domain.ErrPartPinned:                 "part_pinned",
	domain.ErrPartItemMismatch:           "part_item_mismatch",
	domain.ErrInsufficientAvailability:   "insufficient_availability",
	domain.ErrInsufficientUnlistedParts:  "insufficient_unlisted_parts",
	domain.ErrBundleRequiresFullQuantity: "bundle_requires_full_quantity",
	domain.ErrBuyerMismatch:              "buyer_mismatch",
	domain.ErrListingNotActive:           "listing_not_active",
	domain.ErrReservationNotPending:      "reservation_not_pending",
	domain.ErrGiftNotPending:             "gift_not_pending",
	domain.ErrVersionConflict:            "version_conflict",
	domain.ErrContention:                 "contention",

	domain.ErrReservationExpired: "reservation_expired",
	domain.ErrGiftExpired:        "gift_expired",

	domain.ErrNotSeller:        "not_seller",
	domain.ErrNotCreator:       "not_creator",
	domain.ErrReceiverMismatch: "receiver_mismatch",
	domain.ErrSelfGift:         "self_gift",
	domain.ErrSelfPurchase:     "self_purchase",
	domain.ErrInvalidSignature: "invalid_signature",

	domain.ErrHashDivergence: "hash_divergence",
	domain.ErrLedgerHalted:   "ledger_halted",
}

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:    http.StatusBadRequest,
	domain.KindNotFound:      http.StatusNotFound,
	domain.KindConflict:      http.StatusConflict,
	domain.KindExpiry:        http.StatusGone,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindFatal:         http.StatusInternalServerError,
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps err to a status through its kind. Errors outside
// the taxonomy become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	sentinel := domain.Sentinel(err)
	if sentinel == nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	status, ok := kindStatus[domain.KindOf(sentinel)]
	if !ok {
		status = http.StatusInternalServerError
	}
	if errors.Is(sentinel, domain.ErrInvalidSignature) {
		status = http.StatusUnauthorized
	}
	writeError(w, status, errorCodes[sentinel], sentinel.Error())
}
