package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/errs"
)

// Client is an HTTP client for the wallet daemon's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Wallet = (*Client)(nil)

// NewClient creates a wallet client for the daemon at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateMintQuote requests a lightning invoice for the given sats amount.
func (c *Client) CreateMintQuote(ctx context.Context, amount int64) (MintQuote, error) {
	var out MintQuote
	err := c.do(ctx, http.MethodPost, "/v1/quotes", map[string]any{"amount": amount}, &out)
	return out, err
}

// CheckMintQuote returns the quote's current payment state.
func (c *Client) CheckMintQuote(ctx context.Context, quote string) (string, error) {
	var out MintQuote
	if err := c.do(ctx, http.MethodGet, "/v1/quotes/"+quote, nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// MintProofs mints proofs for a paid quote.
func (c *Client) MintProofs(ctx context.Context, amount int64, quote string) ([]cashu.Proof, error) {
	var out struct {
		Proofs []cashu.Proof `json:"proofs"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/mint", map[string]any{"amount": amount, "quote": quote}, &out)
	return out.Proofs, err
}

// Receive redeems an encoded bearer token into platform-held proofs.
func (c *Client) Receive(ctx context.Context, token string) ([]cashu.Proof, error) {
	var out struct {
		Proofs []cashu.Proof `json:"proofs"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/receive", map[string]any{"token": token}, &out)
	return out.Proofs, err
}

// Keys fetches the active mint keyset.
func (c *Client) Keys(ctx context.Context) (json.RawMessage, error) {
	var out struct {
		Keys json.RawMessage `json:"keys"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/keys", nil, &out)
	return out.Keys, err
}

// CreateLockedOutput builds P2PK output descriptors payable only to pubkey.
func (c *Client) CreateLockedOutput(
	ctx context.Context, pubkey string, amount int64, keys json.RawMessage,
) ([]json.RawMessage, error) {
	var out struct {
		Outputs []json.RawMessage `json:"outputs"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/outputs", map[string]any{
		"pubkey": pubkey,
		"amount": amount,
		"keys":   keys,
	}, &out)
	return out.Outputs, err
}

// Send spends amount out of proofs into the given locked outputs.
func (c *Client) Send(
	ctx context.Context, amount int64, proofs []cashu.Proof, outputs []json.RawMessage,
) (SendResult, error) {
	var out SendResult
	err := c.do(ctx, http.MethodPost, "/v1/send", map[string]any{
		"amount":  amount,
		"proofs":  proofs,
		"outputs": outputs,
	}, &out)
	return out, err
}

// CheckProofStates returns the mint's spend state per proof, in order.
func (c *Client) CheckProofStates(ctx context.Context, proofs []cashu.Proof) ([]string, error) {
	var out struct {
		States []string `json:"states"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/checkstate", map[string]any{"proofs": proofs}, &out)
	return out.States, err
}

// do performs one JSON request. Transport and non-2xx failures map to
// ErrWalletUnavailable so callers can abort transitions uniformly.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrWalletUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", errs.ErrWalletUnavailable, method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", errs.ErrWalletUnavailable, method, path, err)
	}
	return nil
}
