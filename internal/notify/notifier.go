// Package notify fans out offer lifecycle events to interested listeners.
// Delivery is best-effort: a dropped notification never affects engine state.
package notify

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"

	"github.com/openpleb/escrowd/internal/model"
)

// Kind enumerates the closed set of event kinds. Each kind has a fixed
// payload shape.
type Kind string

const (
	KindNewOffer       Kind = "new-offer"
	KindUpdateOffer    Kind = "update-offer"
	KindNewClaim       Kind = "new-claim"
	KindUpdateClaim    Kind = "update-claim"
	KindNewReceipt     Kind = "new-receipt"
	KindReceiptSkipped Kind = "receipt-skipped"
)

// Event is one state-change notification. Pubkeys, when non-empty, scopes
// delivery to those participants; otherwise the event is broadcast.
type Event struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"command"`
	Offer   *model.Offer   `json:"offer,omitempty"`
	Claim   *model.Claim   `json:"claim,omitempty"`
	Receipt *model.Receipt `json:"receipt,omitempty"`
	OfferID int64          `json:"offerId,omitempty"`
	Pubkeys []string       `json:"-"`
}

// Notifier is the emit capability the engine depends on.
type Notifier interface {
	Emit(ctx context.Context, ev Event)
}

// NewOffer builds a broadcast event for a freshly created offer.
func NewOffer(o *model.Offer) Event {
	return Event{ID: eventID(), Kind: KindNewOffer, Offer: o}
}

// UpdateOffer builds a broadcast event for an offer state change.
func UpdateOffer(o *model.Offer) Event {
	return Event{ID: eventID(), Kind: KindUpdateOffer, Offer: o}
}

// NewClaim builds a claim event scoped to the given pubkeys.
func NewClaim(c *model.Claim, pubkeys ...string) Event {
	return Event{ID: eventID(), Kind: KindNewClaim, Claim: c, Pubkeys: pubkeys}
}

// UpdateClaim builds a claim update scoped to the given pubkeys.
func UpdateClaim(c *model.Claim, pubkeys ...string) Event {
	return Event{ID: eventID(), Kind: KindUpdateClaim, Claim: c, Pubkeys: pubkeys}
}

// NewReceipt builds a receipt event scoped to the given pubkeys.
func NewReceipt(r *model.Receipt, pubkeys ...string) Event {
	return Event{ID: eventID(), Kind: KindNewReceipt, Receipt: r, Pubkeys: pubkeys}
}

// ReceiptSkipped builds a skip marker event scoped to the given pubkeys.
func ReceiptSkipped(offerID int64, pubkeys ...string) Event {
	return Event{ID: eventID(), Kind: KindReceiptSkipped, OfferID: offerID, Pubkeys: pubkeys}
}

// Marshal renders the event's wire form.
func (ev Event) Marshal() ([]byte, error) { return json.Marshal(ev) }

// scopedTo reports whether the event should reach a subscriber pubkey.
func (ev Event) scopedTo(pubkey string) bool {
	if len(ev.Pubkeys) == 0 {
		return true
	}
	for _, pk := range ev.Pubkeys {
		if pk == pubkey {
			return true
		}
	}
	return false
}

func eventID() string { return uuid.Must(uuid.NewV4()).String() }

// Nop discards all events.
type Nop struct{}

// Emit discards the event.
func (Nop) Emit(context.Context, Event) {}

// Multi forwards each event to every wrapped notifier.
type Multi []Notifier

// Emit forwards to all wrapped notifiers.
func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Emit(ctx, ev)
	}
}
