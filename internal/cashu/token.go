// Package cashu holds the minimal ecash wire types the engine needs: bearer
// token serialization, proof amount arithmetic and P2PK lock inspection. The
// cryptographic lifecycle of proofs (blinding, signing, verification) lives in
// the external wallet daemon and is out of scope here.
package cashu

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TokenPrefix marks the serialized bearer-token format accepted by the engine.
const TokenPrefix = "cashuA"

// Proof is one bearer-token fragment as issued by the mint. ID is the keyset
// id, C the mint's signature commitment. Secret carries a possible P2PK lock.
type Proof struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Secret string `json:"secret"`
	C      string `json:"C"`
}

// Token is a transferable set of proofs redeemable at one mint.
type Token struct {
	Mint   string  `json:"mint"`
	Proofs []Proof `json:"proofs"`
}

// SumProofs returns the total amount carried by a proof set.
func SumProofs(proofs []Proof) int64 {
	var total int64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// EncodeToken serializes a token to its prefixed base64url form.
func EncodeToken(t Token) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeToken parses a prefixed base64url token string.
func DecodeToken(s string) (Token, error) {
	if !strings.HasPrefix(s, TokenPrefix) {
		return Token{}, errors.New("decode token: missing prefix")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, TokenPrefix))
	if err != nil {
		// Some encoders emit padded base64url.
		raw, err = base64.URLEncoding.DecodeString(strings.TrimPrefix(s, TokenPrefix))
		if err != nil {
			return Token{}, fmt.Errorf("decode token: %w", err)
		}
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	if len(t.Proofs) == 0 {
		return Token{}, errors.New("decode token: no proofs")
	}
	return t, nil
}

// P2PKTarget converts a 32-byte x-only pubkey (hex) into the compressed form
// used as a P2PK lock target.
func P2PKTarget(xonlyPubkey string) string { return "02" + xonlyPubkey }

// secretEnvelope matches the well-known secret layout ["P2PK", {...}].
type secretData struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// ParseP2PKLock extracts the lock target pubkey from a proof secret. ok is
// false for plain (unlocked) secrets and for anything unparseable.
func ParseP2PKLock(secret string) (pubkey string, ok bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(secret), &parts); err != nil || len(parts) < 2 {
		return "", false
	}
	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil || kind != "P2PK" {
		return "", false
	}
	var data secretData
	if err := json.Unmarshal(parts[1], &data); err != nil || data.Data == "" {
		return "", false
	}
	return data.Data, true
}
