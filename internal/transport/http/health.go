package http

import (
	stdhttp "net/http"
)

// HaltReporter reports whether the ledger stopped accepting appends.
type HaltReporter interface {
	Halted() bool
}

// HealthHandler reports liveness. A halted ledger turns it into a 503 so
// orchestration can take the instance out of rotation.
func HealthHandler(ledger HaltReporter) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ledger != nil && ledger.Halted() {
			w.WriteHeader(stdhttp.StatusServiceUnavailable)
			_, _ = w.Write([]byte("ledger halted"))
			return
		}
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
