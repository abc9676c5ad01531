// Package wallet talks to the external cashu wallet daemon that performs all
// token cryptography (minting, blind signing, swaps). The engine treats it as
// an opaque collaborator: every call may be slow or fail, and no engine state
// is committed until a call has returned successfully.
package wallet

import (
	"context"
	"encoding/json"

	"github.com/openpleb/escrowd/internal/cashu"
)

// Quote state values reported for a mint quote.
const (
	QuoteUnpaid = "UNPAID"
	QuotePaid   = "PAID"
	QuoteIssued = "ISSUED"
)

// MintQuote is a pending lightning-invoice-backed request to mint ecash.
type MintQuote struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   string `json:"state"`
}

// SendResult is the outcome of a wallet spend: Send carries the requested
// locked outputs, Keep the change the wallet could not match exactly.
type SendResult struct {
	Keep []cashu.Proof `json:"keep"`
	Send []cashu.Proof `json:"send"`
}

// Wallet is the mint/wallet collaborator interface consumed by the engine.
type Wallet interface {
	// CreateMintQuote requests a lightning invoice for the given sats amount.
	CreateMintQuote(ctx context.Context, amount int64) (MintQuote, error)
	// CheckMintQuote returns the quote's current payment state.
	CheckMintQuote(ctx context.Context, quote string) (string, error)
	// MintProofs mints proofs for a paid quote.
	MintProofs(ctx context.Context, amount int64, quote string) ([]cashu.Proof, error)
	// Receive redeems an encoded bearer token into fresh proofs held by the
	// platform. The redeemed amount may be less than the token claims.
	Receive(ctx context.Context, token string) ([]cashu.Proof, error)
	// Keys fetches the active mint keyset, passed through to output creation.
	Keys(ctx context.Context) (json.RawMessage, error)
	// CreateLockedOutput builds output descriptors payable only to pubkey.
	CreateLockedOutput(ctx context.Context, pubkey string, amount int64, keys json.RawMessage) ([]json.RawMessage, error)
	// Send spends amount out of proofs into the given locked outputs,
	// returning the resulting send set and any change.
	Send(ctx context.Context, amount int64, proofs []cashu.Proof, outputs []json.RawMessage) (SendResult, error)
	// CheckProofStates returns the mint's spend state per proof, in order.
	CheckProofStates(ctx context.Context, proofs []cashu.Proof) ([]string, error)
}
