// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Sentinels shared by the settlement engine and the HTTP layer.
var (
	// ErrNotFound indicates the requested offer/claim/receipt does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the offer is not in the state required by the
	// attempted transition (including a lost compare-and-swap race).
	ErrInvalidState = errors.New("invalid offer state")

	// ErrUnauthorized indicates a signature failure, a stale signed payload,
	// or a pubkey that does not match the offer's participants.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAmountMismatch indicates a presented token does not sum to the amount
	// the offer requires.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrBondMismatch indicates a taker bond does not sum to the required bond.
	ErrBondMismatch = errors.New("bond amount mismatch")

	// ErrRedemptionMismatch indicates the wallet redeemed fewer sats than the
	// token presented (e.g. already-spent fragments).
	ErrRedemptionMismatch = errors.New("redemption amount mismatch")

	// ErrInsufficientEscrow indicates the unspent ledger no longer covers a
	// requested settlement. It signals ledger corruption and is never retried.
	ErrInsufficientEscrow = errors.New("insufficient escrow")

	// ErrWalletUnavailable indicates a wallet/mint collaborator call failed.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrInvalidResolution indicates an unknown dispute resolution path.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidAmount indicates a non-positive fiat amount or conversion rate.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountTooLarge indicates the fiat amount exceeds the configured maximum.
	ErrAmountTooLarge = errors.New("amount exceeds maximum")

	// ErrRateLimited indicates the maker pubkey is creating offers too fast.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest indicates malformed caller input (missing fields,
	// undecodable token, unknown dispute response).
	ErrInvalidRequest = errors.New("invalid request")
)
