package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/cashu"
	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/fees"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
	"github.com/openpleb/escrowd/internal/wallet"
)

const (
	makerPub = "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11"
	takerPub = "bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22"

	fixedNow = int64(1700000000)
)

// ---- offer repository fake ----

type fakeOffers struct {
	mu     sync.Mutex
	byID   map[int64]*model.Offer
	nextID int64

	ledger *fakeProofs
	claims *fakeClaims
	quotes *fakeQuotes

	createErr error
	updateErr error
	fundErr   error
	settleErr error
}

var _ repository.OfferRepository = (*fakeOffers)(nil)

func (f *fakeOffers) Create(_ context.Context, o *model.Offer) (*model.Offer, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cpy := *o
	cpy.ID = f.nextID
	f.byID[cpy.ID] = &cpy
	out := cpy
	return &out, nil
}

func (f *fakeOffers) Get(_ context.Context, id int64) (*model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *o
	return &cpy, nil
}

func (f *fakeOffers) List(_ context.Context, statuses []model.OfferStatus) ([]model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Offer
	for _, o := range f.byID {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, *o)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeOffers) ListExpired(_ context.Context, now int64) ([]model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Offer
	for _, o := range f.byID {
		for _, s := range model.NonTerminalStatuses {
			if o.Status == s && o.Deadline() < now {
				out = append(out, *o)
				break
			}
		}
	}
	return out, nil
}

func applyUpdate(o *model.Offer, upd repository.OfferUpdate) {
	if upd.ValidForS != nil {
		o.ValidForS = *upd.ValidForS
	}
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}
	if upd.Invoice != nil {
		o.Invoice = *upd.Invoice
	}
	if upd.Refund != nil {
		o.Refund = *upd.Refund
	}
	if upd.Feedback != nil {
		o.Feedback = *upd.Feedback
	}
	if upd.FeedbackResponse != nil {
		o.FeedbackResponse = *upd.FeedbackResponse
	}
	if upd.ResolutionReason != nil {
		o.ResolutionReason = *upd.ResolutionReason
	}
	if upd.ReceiptSkipped != nil {
		o.ReceiptSkipped = *upd.ReceiptSkipped
	}
}

func (f *fakeOffers) cas(id int64, from, to model.OfferStatus, upd repository.OfferUpdate) (*model.Offer, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if o.Status != from {
		return nil, errs.ErrInvalidState
	}
	o.Status = to
	applyUpdate(o, upd)
	cpy := *o
	return &cpy, nil
}

func (f *fakeOffers) UpdateStatus(_ context.Context, id int64, from, to model.OfferStatus, upd repository.OfferUpdate) (*model.Offer, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cas(id, from, to, upd)
}

// AttachInvoice mirrors the production transaction: the status flip and the
// quote row land together or not at all.
func (f *fakeOffers) AttachInvoice(_ context.Context, id int64, from, to model.OfferStatus, upd repository.OfferUpdate, q *model.MintQuote) (*model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes.createErr != nil {
		return nil, f.quotes.createErr
	}
	o, err := f.cas(id, from, to, upd)
	if err != nil {
		return nil, err
	}
	cpy := *q
	f.quotes.byOffer[q.OfferID] = &cpy
	return o, nil
}

func (f *fakeOffers) Fund(_ context.Context, id int64, from, to model.OfferStatus, proofs []model.Proof, upd repository.OfferUpdate) (*model.Offer, error) {
	if f.fundErr != nil {
		return nil, f.fundErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, err := f.cas(id, from, to, upd)
	if err != nil {
		return nil, err
	}
	f.ledger.append(proofs)
	return o, nil
}

func (f *fakeOffers) Settle(_ context.Context, p repository.SettleParams) (*model.Offer, *model.Claim, error) {
	if f.settleErr != nil {
		return nil, nil, f.settleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, err := f.cas(p.OfferID, p.From, p.To, p.Update)
	if err != nil {
		return nil, nil, err
	}
	spent := make([]model.Proof, 0, len(p.SpentInputs))
	for _, in := range p.SpentInputs {
		in.State = model.ProofSpent
		spent = append(spent, in)
	}
	f.ledger.append(spent)
	f.ledger.append(p.NewProofs)

	var claim *model.Claim
	if p.RewardToken != "" {
		f.claims.mu.Lock()
		defer f.claims.mu.Unlock()
		c, ok := f.claims.byOffer[p.OfferID]
		if !ok {
			return nil, nil, errs.ErrNotFound
		}
		c.Reward = p.RewardToken
		cpy := *c
		claim = &cpy
	}
	return o, claim, nil
}

// ---- claim / receipt / quote fakes ----

type fakeClaims struct {
	mu      sync.Mutex
	byOffer map[int64]*model.Claim
	nextID  int64
	ledger  *fakeProofs

	createErr error
}

var _ repository.ClaimRepository = (*fakeClaims)(nil)

// CreateWithBond mirrors the production transaction: claim row and bond
// ledger rows land together or not at all.
func (f *fakeClaims) CreateWithBond(_ context.Context, c *model.Claim, bond []model.Proof) (*model.Claim, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byOffer[c.OfferID]; exists {
		return nil, errs.ErrInvalidState
	}
	f.nextID++
	cpy := *c
	cpy.ID = f.nextID
	f.byOffer[c.OfferID] = &cpy
	f.ledger.append(bond)
	out := cpy
	return &out, nil
}

func (f *fakeClaims) GetByOfferID(_ context.Context, offerID int64) (*model.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byOffer[offerID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}

type fakeReceipts struct {
	byOffer map[int64]*model.Receipt
	nextID  int64

	createErr error
}

var _ repository.ReceiptRepository = (*fakeReceipts)(nil)

func (f *fakeReceipts) Create(_ context.Context, r *model.Receipt) (*model.Receipt, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, exists := f.byOffer[r.OfferID]; exists {
		return nil, errs.ErrInvalidState
	}
	f.nextID++
	cpy := *r
	cpy.ID = f.nextID
	f.byOffer[r.OfferID] = &cpy
	out := cpy
	return &out, nil
}

func (f *fakeReceipts) GetByOfferID(_ context.Context, offerID int64) (*model.Receipt, error) {
	r, ok := f.byOffer[offerID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *r
	return &cpy, nil
}

type fakeQuotes struct {
	byOffer map[int64]*model.MintQuote

	createErr error
}

var _ repository.MintQuoteRepository = (*fakeQuotes)(nil)

func (f *fakeQuotes) GetByOfferID(_ context.Context, offerID int64) (*model.MintQuote, error) {
	q, ok := f.byOffer[offerID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *q
	return &cpy, nil
}

// ---- append-only ledger fake ----

type fakeProofs struct {
	mu     sync.Mutex
	rows   []model.Proof
	nextID int64

	insertErr error
}

var _ repository.ProofRepository = (*fakeProofs)(nil)

func (f *fakeProofs) append(proofs []model.Proof) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range proofs {
		f.nextID++
		p.ID = f.nextID
		f.rows = append(f.rows, p)
	}
}

func (f *fakeProofs) Insert(_ context.Context, proofs []model.Proof) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.append(proofs)
	return nil
}

func (f *fakeProofs) UnspentByOffer(_ context.Context, offerID int64) ([]model.Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	superseded := map[string]bool{}
	for _, p := range f.rows {
		if p.OfferID == offerID && p.State != model.ProofUnspent {
			superseded[p.Secret] = true
		}
	}
	var out []model.Proof
	for _, p := range f.rows {
		if p.OfferID == offerID && p.State == model.ProofUnspent && !superseded[p.Secret] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProofs) ListPending(_ context.Context, limit int) ([]model.Proof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	confirmed := map[string]bool{}
	for _, p := range f.rows {
		if p.State == model.ProofSpent {
			confirmed[p.Secret] = true
		}
	}
	var out []model.Proof
	for _, p := range f.rows {
		if p.State == model.ProofPending && !confirmed[p.Secret] {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ---- wallet fake ----

type lockRequest struct {
	pubkey string
	amount int64
}

type fakeWallet struct {
	quote      wallet.MintQuote
	quoteState string
	received   []cashu.Proof

	quoteErr   error
	checkErr   error
	mintErr    error
	receiveErr error
	keysErr    error
	lockErr    error
	sendErr    error
	statesErr  error

	proofStates []string

	// receiveGate, when set, blocks Receive until it is closed.
	receiveGate chan struct{}

	mintCalls    int
	receiveCalls int
	sendCalls    int
	locks        []lockRequest
}

var _ wallet.Wallet = (*fakeWallet)(nil)

func (w *fakeWallet) CreateMintQuote(_ context.Context, amount int64) (wallet.MintQuote, error) {
	if w.quoteErr != nil {
		return wallet.MintQuote{}, w.quoteErr
	}
	return w.quote, nil
}

func (w *fakeWallet) CheckMintQuote(_ context.Context, quote string) (string, error) {
	if w.checkErr != nil {
		return "", w.checkErr
	}
	return w.quoteState, nil
}

func (w *fakeWallet) MintProofs(_ context.Context, amount int64, quote string) ([]cashu.Proof, error) {
	w.mintCalls++
	if w.mintErr != nil {
		return nil, w.mintErr
	}
	return proofsOf(amount, "minted"), nil
}

func (w *fakeWallet) Receive(_ context.Context, token string) ([]cashu.Proof, error) {
	if w.receiveGate != nil {
		<-w.receiveGate
	}
	w.receiveCalls++
	if w.receiveErr != nil {
		return nil, w.receiveErr
	}
	if w.received != nil {
		return w.received, nil
	}
	t, err := cashu.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	return proofsOf(cashu.SumProofs(t.Proofs), "received"), nil
}

func (w *fakeWallet) Keys(_ context.Context) (json.RawMessage, error) {
	if w.keysErr != nil {
		return nil, w.keysErr
	}
	return json.RawMessage(`{"keyset":"009a1f"}`), nil
}

func (w *fakeWallet) CreateLockedOutput(_ context.Context, pubkey string, amount int64, _ json.RawMessage) ([]json.RawMessage, error) {
	if w.lockErr != nil {
		return nil, w.lockErr
	}
	w.locks = append(w.locks, lockRequest{pubkey: pubkey, amount: amount})
	out, _ := json.Marshal(lockDescriptor{Pubkey: pubkey, Amount: amount})
	return []json.RawMessage{out}, nil
}

type lockDescriptor struct {
	Pubkey string `json:"pubkey"`
	Amount int64  `json:"amount"`
}

// Send fulfils each locked output exactly and returns any surplus as change.
func (w *fakeWallet) Send(_ context.Context, amount int64, proofs []cashu.Proof, outputs []json.RawMessage) (wallet.SendResult, error) {
	w.sendCalls++
	if w.sendErr != nil {
		return wallet.SendResult{}, w.sendErr
	}
	var res wallet.SendResult
	for i, raw := range outputs {
		var d lockDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return wallet.SendResult{}, err
		}
		res.Send = append(res.Send, cashu.Proof{
			ID:     "009a1f",
			Amount: d.Amount,
			Secret: p2pkSecret(d.Pubkey, i),
			C:      "02c0ffee",
		})
	}
	if change := cashu.SumProofs(proofs) - amount; change > 0 {
		res.Keep = append(res.Keep, cashu.Proof{
			ID: "009a1f", Amount: change, Secret: fmt.Sprintf("change-%d", w.sendCalls), C: "02c0ffee",
		})
	}
	return res, nil
}

func (w *fakeWallet) CheckProofStates(_ context.Context, proofs []cashu.Proof) ([]string, error) {
	if w.statesErr != nil {
		return nil, w.statesErr
	}
	return w.proofStates, nil
}

func p2pkSecret(pubkey string, i int) string {
	return fmt.Sprintf(`["P2PK",{"nonce":"n%d","data":"%s"}]`, i, pubkey)
}

func proofsOf(amount int64, tag string) []cashu.Proof {
	return []cashu.Proof{{ID: "009a1f", Amount: amount, Secret: fmt.Sprintf("%s-%d", tag, amount), C: "02c0ffee"}}
}

// ---- notifier capture ----

type captureNotifier struct {
	events []notify.Event
}

var _ notify.Notifier = (*captureNotifier)(nil)

func (n *captureNotifier) Emit(_ context.Context, ev notify.Event) {
	n.events = append(n.events, ev)
}

func (n *captureNotifier) kinds() []notify.Kind {
	out := make([]notify.Kind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

// ---- limiter fake ----

type fakeLimiter struct {
	ok    bool
	retry time.Duration
	err   error

	calls int
}

func (l *fakeLimiter) Reserve(context.Context, string) (bool, time.Duration, error) {
	l.calls++
	return l.ok, l.retry, l.err
}

// ---- test environment ----

type env struct {
	offers   *fakeOffers
	claims   *fakeClaims
	receipts *fakeReceipts
	proofs   *fakeProofs
	quotes   *fakeQuotes
	wallet   *fakeWallet
	events   *captureNotifier
	limiter  *fakeLimiter
	engine   *Offers
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		receipts: &fakeReceipts{byOffer: map[int64]*model.Receipt{}},
		proofs:   &fakeProofs{},
		quotes:   &fakeQuotes{byOffer: map[int64]*model.MintQuote{}},
		wallet:   &fakeWallet{quoteState: wallet.QuoteUnpaid},
		events:   &captureNotifier{},
		limiter:  &fakeLimiter{ok: true},
	}
	e.claims = &fakeClaims{byOffer: map[int64]*model.Claim{}, ledger: e.proofs}
	e.offers = &fakeOffers{byID: map[int64]*model.Offer{}, ledger: e.proofs, claims: e.claims, quotes: e.quotes}

	e.engine = NewOffers(Deps{
		Offers:   e.offers,
		Claims:   e.claims,
		Receipts: e.receipts,
		Proofs:   e.proofs,
		Quotes:   e.quotes,
		Wallet:   e.wallet,
		Notifier: e.events,
		Limiter:  e.limiter,
	}, Config{
		Fees: fees.Params{
			PlatformFeeFlatRate:   10,
			PlatformFeePercentage: 1.0,
			TakerFeeFlatRate:      10,
			TakerFeePercentage:    1.0,
			BondFlatRate:          5,
			BondPercentage:        0.5,
			MaxFiatAmount:         100000,
		},
		Currency:         "KRW",
		MintURL:          "http://mint",
		CreatedValidForS: 120,
		FundedValidForS:  300,
		ClaimValidForS:   300,
		ReceiptValidForS: 500,
		IssueGraceS:      250,
	}, zap.NewNop())
	e.engine.now = func() time.Time { return time.Unix(fixedNow, 0) }
	return e
}

// seedOffer stores an offer with the canonical 1000-sat fee layout:
// sats 1000, fees 10+10 / 10+10, bond 5+5 (escrow 1050, bond 10).
func (e *env) seedOffer(status model.OfferStatus) *model.Offer {
	e.offers.nextID++
	o := &model.Offer{
		ID:                    e.offers.nextID,
		Status:                status,
		FiatAmount:            1000,
		Currency:              "KRW",
		QRCode:                "qr-data",
		ConversionRate:        1e8,
		SatsAmount:            1000,
		PlatformFeeFlatRate:   10,
		PlatformFeePercentage: 10,
		TakerFeeFlatRate:      10,
		TakerFeePercentage:    10,
		BondFlatRate:          5,
		BondPercentage:        5,
		Pubkey:                makerPub,
		CreatedAt:             fixedNow,
		ValidForS:             120,
	}
	e.offers.byID[o.ID] = o
	return o
}

// seedFunded seeds an offer past funding, with the escrow in the ledger.
func (e *env) seedFunded(status model.OfferStatus) *model.Offer {
	o := e.seedOffer(status)
	o.ValidForS = 300
	e.proofs.append(ledger(o.ID, model.ProofUnspent, o.TotalEscrowAmount(), "escrow"))
	return o
}

// seedClaimed seeds a claimed offer: escrow plus the taker bond in the ledger
// and the claim row present.
func (e *env) seedClaimed(status model.OfferStatus) (*model.Offer, *model.Claim) {
	o := e.seedFunded(status)
	e.proofs.append(ledger(o.ID, model.ProofUnspent, o.BondAmount(), "bond"))
	e.claims.nextID++
	c := &model.Claim{ID: e.claims.nextID, OfferID: o.ID, Pubkey: takerPub, CreatedAt: fixedNow}
	e.claims.byOffer[o.ID] = c
	return o, c
}

func ledger(offerID int64, state model.ProofState, amount int64, tag string) []model.Proof {
	return []model.Proof{{
		OfferID:  offerID,
		KeysetID: "009a1f",
		Secret:   fmt.Sprintf("%s-%d-%d", tag, offerID, amount),
		C:        "02c0ffee",
		Amount:   amount,
		State:    state,
	}}
}

func encodeTestToken(t *testing.T, amount int64) string {
	t.Helper()
	tok, err := cashu.EncodeToken(cashu.Token{
		Mint:   "http://mint",
		Proofs: []cashu.Proof{{ID: "009a1f", Amount: amount, Secret: fmt.Sprintf("tok-%d", amount), C: "02c0ffee"}},
	})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	return tok
}

// decodeSum decodes an engine-produced token and sums its proofs.
func decodeSum(t *testing.T, token string) int64 {
	t.Helper()
	tok, err := cashu.DecodeToken(token)
	if err != nil {
		t.Fatalf("decode token %q: %v", token, err)
	}
	return cashu.SumProofs(tok.Proofs)
}

// lockTargets extracts the distinct lock targets of a token's proofs.
func lockTargets(t *testing.T, token string) map[string]int64 {
	t.Helper()
	tok, err := cashu.DecodeToken(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	out := map[string]int64{}
	for _, p := range tok.Proofs {
		target, ok := cashu.ParseP2PKLock(p.Secret)
		if !ok {
			t.Fatalf("proof without lock in settlement token: %q", p.Secret)
		}
		out[target] += p.Amount
	}
	return out
}
