package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/model"
	"github.com/openpleb/escrowd/internal/payload"
	"github.com/openpleb/escrowd/internal/service"
)

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, errs.ErrInvalidRequest
	}
	return v, nil
}

func offerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errs.ErrInvalidRequest
	}
	return id, nil
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		Amount         int64   `json:"amount"`
		ConversionRate float64 `json:"conversionRate"`
		QRCode         string  `json:"qrCode"`
		Pubkey         string  `json:"pubkey"`
		FiatProviderID *int64  `json:"fiatProviderId"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.Create(r.Context(), service.CreateOfferParams{
		FiatAmount:     body.Amount,
		ConversionRate: body.ConversionRate,
		QRCode:         body.QRCode,
		Pubkey:         body.Pubkey,
		FiatProviderID: body.FiatProviderID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"offer": offer})
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.offers.ListOpen(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"offer": offer}
	if claim, err := s.offers.GetClaim(r.Context(), id); err == nil {
		resp["claim"] = claim
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequestInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.RequestInvoice(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offer": offer})
}

func (s *Server) handleCheckInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	state, offer, err := s.offers.CheckInvoicePaid(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"state": state, "offer": offer})
}

func (s *Server) handlePayWithToken(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := decode[struct {
		Token string `json:"token"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.FundWithToken(r.Context(), id, body.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offer": offer})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := decode[struct {
		Pubkey string `json:"pubkey"`
		Bond   string `json:"bond"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	claim, err := s.offers.Claim(r.Context(), id, body.Pubkey, body.Bond)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"claim": claim})
}

func (s *Server) handleSubmitReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := decode[struct {
		Pubkey     string `json:"pubkey"`
		ReceiptImg string `json:"receiptImg"`
		Skip       bool   `json:"skip"`
		Reason     string `json:"reason"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.offers.SubmitReceipt(r.Context(), id, body.Pubkey, service.ReceiptInput{
		ReceiptImg: body.ReceiptImg,
		Skip:       body.Skip,
		Reason:     body.Reason,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt, "skipped": receipt.Skipped})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.offers.GetReceipt(r.Context(), id)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	signed, err := decode[payload.Signed[service.FeedbackPayload]](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.SubmitFeedback(r.Context(), id, signed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offer": offer})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, err := offerID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	signed, err := decode[payload.Signed[service.DisputePayload]](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.CounterOrForfeit(r.Context(), id, signed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offer": offer})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	body, err := decode[struct {
		OfferID          int64  `json:"offerId"`
		Resolution       string `json:"resolution"`
		ResolutionReason string `json:"resolutionReason"`
	}](r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offer, err := s.offers.ResolveDispute(r.Context(), body.OfferID,
		model.Resolution(body.Resolution), body.ResolutionReason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"offer": offer})
}
