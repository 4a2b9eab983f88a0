package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cimillas/partmarket/internal/domain"
)

type LedgerReader interface {
	Get(ctx context.Context, number int64) (domain.Transaction, error)
	Range(ctx context.Context, from, to int64) ([]domain.Transaction, error)
}

type ledgerRangeResponse struct {
	From         int64                `json:"from"`
	To           int64                `json:"to"`
	Transactions []domain.Transaction `json:"transactions"`
}

// HandleLedgerRange serves GET /ledger?from=&to=. Without "to" it returns
// up to one page starting at "from" (default 1).
func HandleLedgerRange(svc LedgerReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, ok := queryInt(r, "from", 1)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "from must be an integer")
			return
		}
		to, ok := queryInt(r, "to", from+ledgerPage-1)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "to must be an integer")
			return
		}
		txs, err := svc.Range(r.Context(), from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if txs == nil {
			txs = []domain.Transaction{}
		}
		writeJSON(w, http.StatusOK, ledgerRangeResponse{From: from, To: to, Transactions: txs})
	}
}

const ledgerPage = 100

func HandleLedgerGet(svc LedgerReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(mux.Vars(r)["number"], 10, 64)
		if err != nil {
			writeDomainError(w, domain.ErrInvalidRange)
			return
		}
		tx, err := svc.Get(r.Context(), n)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}
