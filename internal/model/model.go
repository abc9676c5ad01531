// Package model defines domain entities used by services and repositories.
package model

// OfferStatus enumerates the lifecycle states of an offer.
type OfferStatus string

// Offer lifecycle states. FOREFEIT keeps the source system's historic spelling
// because it is persisted and exchanged with clients.
const (
	StatusCreated          OfferStatus = "CREATED"
	StatusInvoiceCreated   OfferStatus = "INVOICE_CREATED"
	StatusInvoicePaid      OfferStatus = "INVOICE_PAID"
	StatusClaimed          OfferStatus = "CLAIMED"
	StatusReceiptSubmitted OfferStatus = "RECEIPT_SUBMITTED"
	StatusCompleted        OfferStatus = "COMPLETED"
	StatusMarkedWithIssue  OfferStatus = "MARKED_WITH_ISSUE"
	StatusDisputed         OfferStatus = "DISPUTED"
	StatusForfeit          OfferStatus = "FOREFEIT"
	StatusResolved         OfferStatus = "RESOLVED"
	StatusExpired          OfferStatus = "EXPIRED"
)

// NonTerminalStatuses are the states the expiry sweeper selects on.
var NonTerminalStatuses = []OfferStatus{
	StatusCreated,
	StatusInvoiceCreated,
	StatusInvoicePaid,
	StatusClaimed,
	StatusReceiptSubmitted,
	StatusMarkedWithIssue,
	StatusForfeit,
}

// ProofState tracks a ledger row's view of the external mint's spend state.
type ProofState string

const (
	ProofUnspent ProofState = "UNSPENT"
	ProofPending ProofState = "PENDING"
	ProofSpent   ProofState = "SPENT"
)

// Resolution enumerates the administrative dispute resolution paths.
type Resolution string

const (
	ResolutionReturn    Resolution = "RETURN"
	ResolutionMakerWins Resolution = "MAKER_WINS"
	ResolutionTakerWins Resolution = "TAKER_WINS"
	ResolutionSplit     Resolution = "SPLIT"
)

// DisputeResponse enumerates a taker's answer to a maker-raised issue.
type DisputeResponse string

const (
	DisputeCounter DisputeResponse = "COUNTER"
	DisputeForfeit DisputeResponse = "FORFEIT"
)

// Offer is the central entity. satsAmount and the fee/bond fields are frozen at
// creation; only Status, PaidAt, ValidForS, Invoice, Refund and the feedback
// fields change afterwards.
type Offer struct {
	ID     int64
	Status OfferStatus

	// Fiat side.
	FiatAmount     int64
	Currency       string
	QRCode         string
	FiatProviderID *int64

	// Conversion; ConversionRate is fiat units per BTC.
	ConversionRate float64
	SatsAmount     int64

	// Fee and bond parameters, all integer sats, captured at creation.
	PlatformFeeFlatRate   int64
	PlatformFeePercentage int64
	TakerFeeFlatRate      int64
	TakerFeePercentage    int64
	BondFlatRate          int64
	BondPercentage        int64

	// Maker identity (32-byte x-only pubkey, hex).
	Pubkey string

	// Lifecycle timestamps, unix seconds. ValidForS is the rolling
	// seconds-to-live from CreatedAt.
	CreatedAt int64
	PaidAt    *int64
	ValidForS int64

	// Outcome artifacts.
	Invoice          string
	Refund           string
	Feedback         string
	FeedbackResponse string
	ResolutionReason string
	ReceiptSkipped   bool
}

// Deadline returns the unix second after which the offer is expired.
func (o *Offer) Deadline() int64 { return o.CreatedAt + o.ValidForS }

// TotalEscrowAmount is the amount a maker must fund: sats plus both platform
// fees, both taker fees, and the bond component.
func (o *Offer) TotalEscrowAmount() int64 {
	return o.SatsAmount +
		o.PlatformFeeFlatRate + o.PlatformFeePercentage +
		o.TakerFeeFlatRate + o.TakerFeePercentage +
		o.BondFlatRate + o.BondPercentage
}

// BondAmount is the collateral a taker posts at claim time.
func (o *Offer) BondAmount() int64 { return o.BondFlatRate + o.BondPercentage }

// ResolutionTotal is the disputed pot: everything except the platform fees,
// which stay with the platform on every resolution path.
func (o *Offer) ResolutionTotal() int64 {
	return o.SatsAmount +
		o.TakerFeeFlatRate + o.TakerFeePercentage +
		2*o.BondAmount()
}

// Claim records the taker that claimed an offer. At most one per offer; the
// reward token is set once, on settlement.
type Claim struct {
	ID        int64
	OfferID   int64
	Pubkey    string
	Reward    string
	CreatedAt int64
}

// Receipt is the taker's proof of fiat payment, or a record that the taker
// skipped uploading one. At most one per offer, immutable once written.
type Receipt struct {
	ID         int64
	OfferID    int64
	Pubkey     string
	ReceiptImg string
	Skipped    bool
	Reason     string
	CreatedAt  int64
}

// Proof is an escrow ledger entry mirroring one external bearer-token
// fragment. Rows are append-only: a state change is a new row.
type Proof struct {
	ID       int64
	OfferID  int64
	KeysetID string
	Secret   string
	C        string
	Amount   int64
	State    ProofState
}

// MintQuote tracks a pending lightning-invoice-backed funding request.
type MintQuote struct {
	Quote   string
	OfferID int64
	Amount  int64
	Request string
	State   string
}
