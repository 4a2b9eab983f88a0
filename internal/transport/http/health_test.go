package http

import (
	"net/http/httptest"
	"testing"
)

type haltFlag bool

func (h haltFlag) Halted() bool { return bool(h) }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		ledger HaltReporter
		status int
		body   string
	}{
		{"no ledger", nil, 200, "ok"},
		{"running", haltFlag(false), 200, "ok"},
		{"halted", haltFlag(true), 503, "ledger halted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			rec := httptest.NewRecorder()

			HealthHandler(tc.ledger)(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if body := rec.Body.String(); body != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, body)
			}
		})
	}
}
