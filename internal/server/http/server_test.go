package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/fees"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/repository"
	"github.com/openpleb/escrowd/internal/service"
)

// stubOffers keeps offers in memory; only the read/create paths the handler
// tests exercise are implemented.
type stubOffers struct {
	byID   map[int64]*model.Offer
	nextID int64
}

var _ repository.OfferRepository = (*stubOffers)(nil)

func (s *stubOffers) Create(_ context.Context, o *model.Offer) (*model.Offer, error) {
	s.nextID++
	cpy := *o
	cpy.ID = s.nextID
	s.byID[cpy.ID] = &cpy
	out := cpy
	return &out, nil
}

func (s *stubOffers) Get(_ context.Context, id int64) (*model.Offer, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *o
	return &cpy, nil
}

func (s *stubOffers) List(_ context.Context, statuses []model.OfferStatus) ([]model.Offer, error) {
	var out []model.Offer
	for _, o := range s.byID {
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, *o)
				break
			}
		}
	}
	return out, nil
}

func (s *stubOffers) ListExpired(context.Context, int64) ([]model.Offer, error) {
	return nil, nil
}

func (s *stubOffers) UpdateStatus(context.Context, int64, model.OfferStatus, model.OfferStatus, repository.OfferUpdate) (*model.Offer, error) {
	return nil, errs.ErrInvalidState
}

func (s *stubOffers) AttachInvoice(context.Context, int64, model.OfferStatus, model.OfferStatus, repository.OfferUpdate, *model.MintQuote) (*model.Offer, error) {
	return nil, errs.ErrInvalidState
}

func (s *stubOffers) Fund(context.Context, int64, model.OfferStatus, model.OfferStatus, []model.Proof, repository.OfferUpdate) (*model.Offer, error) {
	return nil, errs.ErrInvalidState
}

func (s *stubOffers) Settle(context.Context, repository.SettleParams) (*model.Offer, *model.Claim, error) {
	return nil, nil, errs.ErrInvalidState
}

type stubClaims struct{}

func (stubClaims) CreateWithBond(context.Context, *model.Claim, []model.Proof) (*model.Claim, error) {
	return nil, errs.ErrInvalidState
}
func (stubClaims) GetByOfferID(context.Context, int64) (*model.Claim, error) {
	return nil, errs.ErrNotFound
}

type stubReceipts struct{}

func (stubReceipts) Create(context.Context, *model.Receipt) (*model.Receipt, error) {
	return nil, errs.ErrInvalidState
}
func (stubReceipts) GetByOfferID(context.Context, int64) (*model.Receipt, error) {
	return nil, errs.ErrNotFound
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	engine := service.NewOffers(service.Deps{
		Offers:   &stubOffers{byID: map[int64]*model.Offer{}},
		Claims:   stubClaims{},
		Receipts: stubReceipts{},
	}, service.Config{
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
		CreatedValidForS: 120,
	}, zap.NewNop())
	return New(engine, notify.NewHub(zap.NewNop()), zap.NewNop()).Router()
}

func TestCreateOffer_Endpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	body := `{"amount":1000,"conversionRate":1e8,"qrCode":"qr-data","pubkey":"maker-pub"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Offer model.Offer `json:"offer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Offer.ID == 0 || resp.Offer.Status != model.StatusCreated {
		t.Fatalf("offer = %+v", resp.Offer)
	}
	if resp.Offer.SatsAmount != 1000 {
		t.Fatalf("sats = %d", resp.Offer.SatsAmount)
	}
}

func TestCreateOffer_BadRequests(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	for name, body := range map[string]string{
		"malformed json": `{"amount":`,
		"missing pubkey": `{"amount":1000,"conversionRate":1e8,"qrCode":"qr"}`,
		"zero amount":    `{"amount":0,"conversionRate":1e8,"qrCode":"qr","pubkey":"p"}`,
		"over cap":       `{"amount":999999,"conversionRate":1e8,"qrCode":"qr","pubkey":"p"}`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestGetOffer_Endpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	body := `{"amount":1000,"conversionRate":1e8,"qrCode":"qr","pubkey":"maker-pub"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed offer: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offers/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offers/404", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing offer: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offers/not-a-number", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}

func TestListOffers_Endpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	body := `{"amount":1000,"conversionRate":1e8,"qrCode":"qr","pubkey":"maker-pub"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed offer: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var resp struct {
		Offers []model.Offer `json:"offers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Offers) != 1 {
		t.Fatalf("offers = %+v", resp.Offers)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	cases := map[error]int{
		errs.ErrNotFound:           http.StatusNotFound,
		errs.ErrUnauthorized:       http.StatusUnauthorized,
		errs.ErrRateLimited:        http.StatusTooManyRequests,
		errs.ErrWalletUnavailable:  http.StatusBadGateway,
		errs.ErrInvalidState:       http.StatusBadRequest,
		errs.ErrAmountMismatch:     http.StatusBadRequest,
		errs.ErrBondMismatch:       http.StatusBadRequest,
		errs.ErrInvalidResolution:  http.StatusBadRequest,
		errs.ErrInvalidRequest:     http.StatusBadRequest,
		errs.ErrInsufficientEscrow: http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := status(err); got != want {
			t.Fatalf("status(%v) = %d, want %d", err, got, want)
		}
	}
}
