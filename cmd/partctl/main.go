// Command partctl signs ledger requests and audits a running ledger.
//
//	partctl address --key <hex>
//	partctl sign --key <hex> --action RESERVE --field listing_id=... --field buyer=...
//	partctl audit --url http://localhost:8080 [--from 1] [--to N]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/cimillas/partmarket/internal/audit"
	"github.com/cimillas/partmarket/internal/signer"
)

const usage = `usage: partctl <command> [flags]

commands:
  address   print the address of a private key
  keygen    generate a new private key
  sign      sign a request message
  audit     recompute every ledger hash through the HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "keygen":
		err = runKeygen(os.Stdout)
	case "sign":
		err = runSign(os.Args[2:], os.Stdout)
	case "audit":
		err = runAudit(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "partctl: %v\n", err)
		os.Exit(1)
	}
}

func keyFlag(fs *pflag.FlagSet) *string {
	return fs.String("key", os.Getenv("PARTCTL_KEY"), "hex private key (default $PARTCTL_KEY)")
}

func runAddress(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("address", pflag.ContinueOnError)
	key := keyFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	w, err := signer.WalletFromHex(*key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, w.Address())
	return err
}

func runKeygen(out io.Writer) error {
	w, err := signer.NewWallet()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "key     %s\naddress %s\n", w.PrivateKeyHex(), w.Address())
	return err
}

func runSign(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	key := keyFlag(fs)
	action := fs.String("action", "", "message action, e.g. MINT or NFT_BUY")
	fields := fs.StringArray("field", nil, "message field as name=value (repeatable)")
	show := fs.Bool("show-message", false, "print the signed message before the signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" {
		return errors.New("--action is required")
	}
	values, err := parseFields(*fields)
	if err != nil {
		return err
	}
	w, err := signer.WalletFromHex(*key)
	if err != nil {
		return err
	}
	msg := signer.Message(strings.ToUpper(*action), values)
	sig, err := w.Sign(msg)
	if err != nil {
		return err
	}
	if *show {
		fmt.Fprintf(out, "%s\n", msg)
	}
	_, err = fmt.Fprintln(out, sig)
	return err
}

func parseFields(raw []string) (map[string]string, error) {
	values := make(map[string]string, len(raw))
	for _, f := range raw {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("field %q is not name=value", f)
		}
		values[name] = value
	}
	return values, nil
}

type ledgerPage struct {
	Transactions []json.RawMessage `json:"transactions"`
}

func runAudit(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("audit", pflag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost:8080", "API base URL")
	from := fs.Int64("from", 1, "first transaction number")
	to := fs.Int64("to", 0, "last transaction number (0 reads to the end)")
	page := fs.Int64("page", 500, "records per request")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from < 1 || *page < 1 || (*to != 0 && *to < *from) {
		return errors.New("invalid range")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &http.Client{}
	var docs []map[string]any
	for next := *from; *to == 0 || next <= *to; {
		last := next + *page - 1
		if *to != 0 && last > *to {
			last = *to
		}
		records, err := fetchPage(ctx, client, strings.TrimRight(*baseURL, "/"), next, last)
		if err != nil {
			return err
		}
		for _, raw := range records {
			doc, err := audit.DecodeDocument(raw)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		if int64(len(records)) < last-next+1 {
			break
		}
		next = last + 1
	}

	report := audit.Verify(docs)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d mismatches, %d gaps", len(report.Mismatches), len(report.Gaps))
	}
	return nil
}

func fetchPage(ctx context.Context, client *http.Client, baseURL string, from, to int64) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/ledger?from=%d&to=%d", baseURL, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	var p ledgerPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return p.Transactions, nil
}
