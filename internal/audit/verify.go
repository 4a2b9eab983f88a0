package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Checker recomputes the hash of any JSON-encodable record. The ledger uses
// it to cross-check every append against the operational hasher.
type Checker struct{}

// Recompute encodes record to JSON, decodes it back as a plain document and
// hashes that document.
func (Checker) Recompute(record any) (string, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	doc, err := DecodeDocument(b)
	if err != nil {
		return "", err
	}
	return HashDocument(doc)
}

// DecodeDocument decodes one JSON object, keeping numbers exact.
func DecodeDocument(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return doc, nil
}

// Mismatch describes a record whose stored hash differs from the recomputed one.
type Mismatch struct {
	Number   string `json:"transaction_number"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
	Err      string `json:"error,omitempty"`
}

// Report summarizes a verification pass.
type Report struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
	Gaps       []string   `json:"gaps,omitempty"`
}

func (r Report) OK() bool {
	return len(r.Mismatches) == 0 && len(r.Gaps) == 0
}

// Verify recomputes the hash of every document and compares it with the
// stored "hash" field. Documents must be in ascending transaction_number
// order; missing numbers are reported as gaps.
func Verify(docs []map[string]any) Report {
	report := Report{Mismatches: []Mismatch{}}
	var prev int64
	for i, doc := range docs {
		report.Checked++
		num := fmt.Sprint(doc["transaction_number"])
		stored, _ := doc["hash"].(string)

		if n, err := toInt64(doc["transaction_number"]); err == nil {
			if i > 0 && n > prev+1 {
				report.Gaps = append(report.Gaps, fmt.Sprintf("%d..%d", prev+1, n-1))
			}
			prev = n
		}

		computed, err := HashDocument(doc)
		if err != nil {
			report.Mismatches = append(report.Mismatches, Mismatch{Number: num, Stored: stored, Err: err.Error()})
			continue
		}
		if computed != stored {
			report.Mismatches = append(report.Mismatches, Mismatch{Number: num, Stored: stored, Computed: computed})
		}
	}
	return report
}
