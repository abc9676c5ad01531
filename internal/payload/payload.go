// Package payload verifies schnorr-signed off-chain messages (feedback,
// dispute responses) before they are allowed to affect offer state.
//
// The signed message is nonce ∥ timestamp ∥ canonicalJSON(payload), where the
// timestamp is unix milliseconds and canonicalJSON serializes all object keys
// in sorted order. The SHA-256 digest of that message is verified as a BIP-340
// signature against a 32-byte x-only public key.
package payload

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// MaxAge is the freshness window. Older signatures are rejected regardless of
// validity; nonces are not tracked beyond this window.
const MaxAge = 60 * time.Second

// Signed carries a payload together with its signature envelope, as submitted
// by clients.
type Signed[T any] struct {
	Payload   T      `json:"payload"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// Verify reports whether sig is a fresh, valid signature over payload by the
// holder of pubkey (x-only, hex). It never returns an error: any malformed
// input fails verification.
func Verify(payload any, sigHex, nonce string, timestampMS int64, pubkeyHex string) bool {
	return verifyAt(time.Now(), payload, sigHex, nonce, timestampMS, pubkeyHex)
}

func verifyAt(now time.Time, payload any, sigHex, nonce string, timestampMS int64, pubkeyHex string) bool {
	if now.UnixMilli()-timestampMS > MaxAge.Milliseconds() {
		return false
	}
	msg, err := message(payload, nonce, timestampMS)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pkBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(msg)
	return sig.Verify(digest[:], pub)
}

// Sign produces a signed envelope over payload with a fresh random nonce.
// Used by the test harness and by tooling that acts as a participant.
func Sign[T any](p T, priv *btcec.PrivateKey) (Signed[T], error) {
	return signAt(time.Now(), p, priv)
}

func signAt[T any](now time.Time, p T, priv *btcec.PrivateKey) (Signed[T], error) {
	var nonceBytes [32]byte
	if _, err := rand.Read(nonceBytes[:]); err != nil {
		return Signed[T]{}, err
	}
	nonce := hex.EncodeToString(nonceBytes[:])
	ts := now.UnixMilli()

	msg, err := message(p, nonce, ts)
	if err != nil {
		return Signed[T]{}, err
	}
	digest := sha256.Sum256(msg)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return Signed[T]{}, err
	}
	return Signed[T]{
		Payload:   p,
		Signature: hex.EncodeToString(sig.Serialize()),
		Nonce:     nonce,
		Timestamp: ts,
	}, nil
}

func message(payload any, nonce string, timestampMS int64) ([]byte, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(nonce)
	buf.WriteString(strconv.FormatInt(timestampMS, 10))
	buf.Write(canonical)
	return buf.Bytes(), nil
}

// canonicalJSON renders payload with recursively sorted object keys and no
// HTML escaping, matching JSON.stringify over a key-sorted object.
func canonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// Round-trip through any: encoding/json serializes map keys in sorted
	// order, which canonicalizes every nesting level at once.
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
